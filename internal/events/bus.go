package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oremus-labs/ol-bot-console/internal/logstream"
)

// envelope is the Redis wire form. Origin lets a bus skip its own echoes.
type envelope struct {
	Origin string             `json:"origin"`
	Entry  logstream.LogEntry `json:"entry"`
}

// Bus multiplexes log entries to connected clients (local + Redis backed).
type Bus struct {
	client redis.UniversalClient
	logger *log.Logger
	ch     string
	origin string

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	stop chan struct{}
	once sync.Once
}

// subscriber is one attached consumer. A lossy subscriber drops entries when
// its channel is full. A lossless one queues them in memory and a pump
// goroutine feeds the channel.
type subscriber struct {
	out      chan logstream.LogEntry
	lossless bool

	mu      sync.Mutex
	pending []logstream.LogEntry
	wake    chan struct{}
	done    chan struct{}
}

// Options configure the bus.
type Options struct {
	Client  redis.UniversalClient
	Logger  *log.Logger
	Channel string
}

// NewBus creates a new log bus.
func NewBus(opts Options) *Bus {
	channel := opts.Channel
	if channel == "" {
		channel = "bot-console-live-log"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	bus := &Bus{
		client:      opts.Client,
		logger:      logger,
		ch:          channel,
		origin:      uuid.NewString(),
		subscribers: make(map[*subscriber]struct{}),
		stop:        make(chan struct{}),
	}
	if bus.client != nil {
		go bus.observeRedis()
	}
	return bus
}

// Publish broadcasts an entry to all local subscribers and mirrors it to Redis.
func (b *Bus) Publish(ctx context.Context, entry logstream.LogEntry) error {
	b.broadcast(entry)

	if b.client == nil {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: b.origin, Entry: entry})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	if err := b.client.Publish(ctx, b.ch, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe registers a subscriber and returns a channel plus a cancel func.
// The channel is closed on cancel, when ctx ends, or when the bus closes.
// Entries are dropped while the subscriber's backlog is full.
func (b *Bus) Subscribe(ctx context.Context) (<-chan logstream.LogEntry, func(), error) {
	return b.subscribe(ctx, false)
}

// SubscribeAll is Subscribe for consumers that must see every entry, such as
// the archiver. Entries queue in memory while the consumer is busy.
func (b *Bus) SubscribeAll(ctx context.Context) (<-chan logstream.LogEntry, func(), error) {
	return b.subscribe(ctx, true)
}

func (b *Bus) subscribe(ctx context.Context, lossless bool) (<-chan logstream.LogEntry, func(), error) {
	select {
	case <-b.stop:
		return nil, nil, fmt.Errorf("bus closed")
	default:
	}

	sub := &subscriber{
		out:      make(chan logstream.LogEntry, 64),
		lossless: lossless,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(sub.done)
			if !lossless {
				close(sub.out)
			}
		}
		b.mu.Unlock()
	}
	if lossless {
		go sub.pump()
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.stop:
		case <-sub.done:
		}
		cancel()
	}()

	return sub.out, cancel, nil
}

// pump moves queued entries to out until done, then closes out.
func (s *subscriber) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, entry := range batch {
			select {
			case s.out <- entry:
			case <-s.done:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
	}
}

// Subscribers reports the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close detaches every subscriber and stops the Redis listener.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.stop) })
}

func (b *Bus) broadcast(entry logstream.LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.lossless {
			sub.mu.Lock()
			sub.pending = append(sub.pending, entry)
			sub.mu.Unlock()
			select {
			case sub.wake <- struct{}{}:
			default:
			}
			continue
		}
		select {
		case sub.out <- entry:
		default:
			b.logger.Printf("events: dropping log entry %s (subscriber backlog)", entry.UUID)
		}
	}
}

func (b *Bus) observeRedis() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-b.stop
		cancel()
	}()

	pubsub := b.client.Subscribe(ctx, b.ch)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Printf("events: redis subscriber error: %v", err)
			select {
			case <-time.After(2 * time.Second):
			case <-b.stop:
				return
			}
			continue
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *Bus) handleRemote(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Printf("events: invalid payload: %v", err)
		return
	}
	if env.Origin == b.origin {
		return
	}
	b.broadcast(env.Entry)
}
