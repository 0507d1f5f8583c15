package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
)

const (
	defaultStream = "bot-console:live-log"
	defaultGroup  = "archive-workers"
)

// ErrNotConfigured is returned when the queue has no Redis client.
var ErrNotConfigured = errors.New("log queue not configured")

// Producer publishes log entries onto a Redis Stream.
type Producer struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewProducer constructs a producer for the provided stream. maxLen caps the
// stream length approximately; zero leaves it unbounded.
func NewProducer(client redis.UniversalClient, stream string, maxLen int64) *Producer {
	if stream == "" {
		stream = defaultStream
	}
	return &Producer{client: client, stream: stream, maxLen: maxLen}
}

// Enqueue pushes entries to the stream, one message each.
func (p *Producer) Enqueue(ctx context.Context, entries ...logstream.LogEntry) error {
	if p == nil || p.client == nil {
		return ErrNotConfigured
	}
	if len(entries) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal log entry %s: %w", entry.UUID, err)
		}
		args := &redis.XAddArgs{
			Stream: p.stream,
			ID:     "*",
			Values: map[string]interface{}{
				"data": data,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Publish implements logstream.Publisher so a producer can sit directly
// behind the stream client.
func (p *Producer) Publish(ctx context.Context, entry logstream.LogEntry) error {
	return p.Enqueue(ctx, entry)
}

// Consumer pulls log entries from a Redis Stream consumer group. It is not
// safe for concurrent use.
//
// Next first replays this consumer's own pending list (entries read but never
// acked, e.g. before a restart under the same name), then claims entries other
// consumers left pending for longer than the claim idle time, and only then
// reads new messages.
type Consumer struct {
	client   redis.UniversalClient
	stream   string
	group    string
	name     string
	blockDur time.Duration

	claimIdle  time.Duration
	claimEvery time.Duration
	lastClaim  time.Time
	drained    bool
}

// NewConsumer creates a consumer bound to a stream + group.
func NewConsumer(client redis.UniversalClient, stream, group, name string) *Consumer {
	if stream == "" {
		stream = defaultStream
	}
	if group == "" {
		group = defaultGroup
	}
	if name == "" {
		name = uuid.NewString()
	}
	return &Consumer{
		client:   client,
		stream:   stream,
		group:    group,
		name:     name,
		blockDur: 5 * time.Second,

		claimIdle:  time.Minute,
		claimEvery: 30 * time.Second,
	}
}

// WithClaimIdle sets how long another consumer's entry must sit unacked
// before this consumer takes it over. Zero or less disables claiming.
func (c *Consumer) WithClaimIdle(d time.Duration) *Consumer {
	c.claimIdle = d
	return c
}

// EnsureGroup ensures the consumer group exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrNotConfigured
	}
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Next fetches the next entry from the stream, blocking up to the consumer's
// block duration. A nil entry with an empty ID means nothing arrived. A
// message that fails to decode is returned with its ID and the error so the
// caller can ack it.
func (c *Consumer) Next(ctx context.Context) (*logstream.LogEntry, string, error) {
	if c == nil || c.client == nil {
		return nil, "", ErrNotConfigured
	}

	if !c.drained {
		msg, err := c.read(ctx, "0", -1)
		if err != nil {
			return nil, "", err
		}
		if msg != nil {
			return decodeResult(*msg)
		}
		c.drained = true
	}

	if c.claimIdle > 0 && time.Since(c.lastClaim) >= c.claimEvery {
		msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  c.claimIdle,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, "", err
		}
		if len(msgs) > 0 {
			return decodeResult(msgs[0])
		}
		c.lastClaim = time.Now()
	}

	msg, err := c.read(ctx, ">", c.blockDur)
	if err != nil || msg == nil {
		return nil, "", err
	}
	return decodeResult(*msg)
}

// read returns at most one message from the group starting at id. block < 0
// does not block.
func (c *Consumer) read(ctx context.Context, id string, block time.Duration) (*redis.XMessage, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, id},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			return &msg, nil
		}
	}
	return nil, nil
}

func decodeResult(msg redis.XMessage) (*logstream.LogEntry, string, error) {
	entry, err := decodeMessage(msg)
	if err != nil {
		return nil, msg.ID, err
	}
	return entry, msg.ID, nil
}

func decodeMessage(msg redis.XMessage) (*logstream.LogEntry, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", msg.ID)
	}
	payload, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("message %s data has type %T", msg.ID, raw)
	}
	entry, err := logstream.ParseEntry([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &entry, nil
}

// Ack confirms processing of a message.
func (c *Consumer) Ack(ctx context.Context, id string) error {
	if c == nil || c.client == nil || id == "" {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, id).Err()
}
