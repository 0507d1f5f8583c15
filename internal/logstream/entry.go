// Package logstream consumes the bot platform's live log feed: it keeps one
// streaming connection open, decodes `data: ` frames into LogEntry values,
// retains the newest entries in a bounded cache and reconnects whenever the
// stream ends.
package logstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// LogEntry is one structured log line received from the server. Known fields
// are decoded for convenience; Fields keeps the full payload so nothing the
// server sent is lost when the entry is re-encoded.
type LogEntry struct {
	UUID  string
	Type  string
	Level string
	Time  float64
	Data  string

	Fields map[string]json.RawMessage
}

// ErrNotObject is returned by ParseEntry for payloads that are valid JSON but
// not a JSON object.
var ErrNotObject = errors.New("log payload is not a JSON object")

// ParseEntry decodes a frame payload. Only JSON well-formedness is checked;
// fields of unexpected types are kept verbatim in Fields.
func ParseEntry(payload []byte) (LogEntry, error) {
	trimmed := bytes.TrimSpace(payload)
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		if json.Valid(trimmed) {
			return LogEntry{}, ErrNotObject
		}
		return LogEntry{}, fmt.Errorf("invalid log payload: %w", err)
	}
	if fields == nil {
		return LogEntry{}, ErrNotObject
	}
	entry := LogEntry{Fields: fields}
	entry.UUID = uuidField(fields["uuid"])
	entry.Type = stringField(fields["type"])
	entry.Level = stringField(fields["level"])
	entry.Time = numberField(fields["time"])
	if raw, ok := fields["data"]; ok {
		if s, ok := decodeString(raw); ok {
			entry.Data = s
		} else if !isNull(raw) {
			entry.Data = string(raw)
		}
	}
	return entry, nil
}

// NewErrorEntry builds the synthetic entry recorded when the stream fails.
func NewErrorEntry(now time.Time, message string) LogEntry {
	entry := LogEntry{
		UUID:  "error-" + strconv.FormatInt(now.UnixMilli(), 10),
		Type:  "log",
		Level: "ERROR",
		Time:  float64(now.UnixMilli()) / 1000,
		Data:  message,
	}
	entry.Fields = entry.knownFields()
	return entry
}

// WithUUID returns a copy of e carrying id.
func (e LogEntry) WithUUID(id string) LogEntry {
	e.UUID = id
	fields := make(map[string]json.RawMessage, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["uuid"], _ = json.Marshal(id)
	e.Fields = fields
	return e
}

// MarshalJSON re-emits the original payload with the current uuid.
func (e LogEntry) MarshalJSON() ([]byte, error) {
	fields := e.Fields
	if fields == nil {
		fields = e.knownFields()
	}
	out := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	if e.UUID != "" && uuidField(out["uuid"]) != e.UUID {
		out["uuid"], _ = json.Marshal(e.UUID)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the same shape MarshalJSON produces.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	parsed, err := ParseEntry(data)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e LogEntry) knownFields() map[string]json.RawMessage {
	fields := map[string]json.RawMessage{}
	put := func(key string, v interface{}) {
		raw, err := json.Marshal(v)
		if err == nil {
			fields[key] = raw
		}
	}
	if e.UUID != "" {
		put("uuid", e.UUID)
	}
	if e.Type != "" {
		put("type", e.Type)
	}
	if e.Level != "" {
		put("level", e.Level)
	}
	if e.Time != 0 {
		put("time", e.Time)
	}
	put("data", e.Data)
	return fields
}

// uuidField reads the entry identity. Absent, null, "", 0 and false count as
// missing; any other non-string value is kept as its JSON text.
func uuidField(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	if s, ok := decodeString(raw); ok {
		return s
	}
	switch string(raw) {
	case "null", "false":
		return ""
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil && f == 0 {
		return ""
	}
	return string(raw)
}

func stringField(raw json.RawMessage) string {
	s, _ := decodeString(raw)
	return s
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func numberField(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return f
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
