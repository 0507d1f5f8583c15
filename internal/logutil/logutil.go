package logutil

import (
	"encoding/json"
	"log"
	"time"
)

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// Logger writes JSON log lines tagged with a component name.
type Logger struct {
	out       *log.Logger
	component string
}

// New returns a Logger writing to out (log.Default() when nil).
func New(out *log.Logger, component string) *Logger {
	if out == nil {
		out = log.Default()
	}
	return &Logger{out: out, component: component}
}

// Info logs a structured info message.
func (l *Logger) Info(msg string, fields Fields) {
	l.write("info", msg, fields)
}

// Warn logs a structured warning.
func (l *Logger) Warn(msg string, fields Fields) {
	l.write("warn", msg, fields)
}

// Error logs a structured error message including the error string.
func (l *Logger) Error(msg string, err error, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.write("error", msg, fields)
}

func (l *Logger) write(level, msg string, fields Fields) {
	if l == nil {
		l = New(nil, "")
	}
	entry := map[string]interface{}{
		"level":     level,
		"message":   msg,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		entry[k] = v
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		l.out.Printf("%s: %+v", msg, fields)
		return
	}
	l.out.Printf("%s", payload)
}

var std = New(nil, "")

// Info logs a structured info message on the default logger.
func Info(msg string, fields Fields) {
	std.Info(msg, fields)
}

// Warn logs a structured warning on the default logger.
func Warn(msg string, fields Fields) {
	std.Warn(msg, fields)
}

// Error logs a structured error message on the default logger.
func Error(msg string, err error, fields Fields) {
	std.Error(msg, err, fields)
}
