package logger

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Logger writes one JSON object per line. Entries carry the service name,
// the hostname and any request/order ids stored in the context, so a single
// grep over request_id reconstructs a request across components.
type Logger struct {
	service  string
	hostname string

	mu  sync.Mutex
	out io.Writer
}

// record is the wire shape of one log line.
type record struct {
	Timestamp string      `json:"timestamp"`
	Level     string      `json:"level"`
	Service   string      `json:"service"`
	Action    string      `json:"action"`
	Message   string      `json:"message"`
	Hostname  string      `json:"hostname"`
	RequestID string      `json:"request_id,omitempty"`
	OrderID   string      `json:"order_id,omitempty"`
	Details   any         `json:"details,omitempty"`
	Error     *errDetails `json:"error,omitempty"`
}

type errDetails struct {
	Msg   string `json:"msg"`
	Stack string `json:"stack"`
}

// New creates a logger for the named service writing to stdout.
func New(service string) *Logger {
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		host = "unknown-hostname"
	}
	return &Logger{service: service, hostname: host, out: os.Stdout}
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.write(ctx, "DEBUG", action, msg, details, nil)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.write(ctx, "INFO", action, msg, details, nil)
}

// Error writes an ERROR line with the error message and a stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	e := &errDetails{Msg: "unknown error", Stack: string(debug.Stack())}
	if err != nil {
		e.Msg = strings.TrimSpace(err.Error())
	}
	l.write(ctx, "ERROR", action, msg, details, e)
}

func (l *Logger) write(ctx context.Context, level, action, msg string, details any, e *errDetails) {
	rec := record{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Service:   l.service,
		Action:    actionOrDefault(action),
		Message:   strings.TrimSpace(msg),
		Hostname:  l.hostname,
		RequestID: fromContext(ctx, requestIDKey),
		OrderID:   fromContext(ctx, orderIDKey),
		Details:   details,
		Error:     e,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		// details are the only caller-controlled value that can fail to
		// marshal; drop them and keep the line
		rec.Details = map[string]string{"details_dropped": err.Error()}
		if line, err = json.Marshal(rec); err != nil {
			return
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

func actionOrDefault(a string) string {
	if a = strings.TrimSpace(a); a != "" {
		return a
	}
	return "unspecified"
}

// Context plumbing for correlation ids.

type ctxKey int

const (
	requestIDKey ctxKey = iota
	orderIDKey
)

// WithRequestID returns a context whose log lines will carry request_id.
func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// WithOrderID returns a context whose log lines will carry order_id.
func (l *Logger) WithOrderID(ctx context.Context, id string) context.Context {
	return withValue(ctx, orderIDKey, id)
}

func withValue(ctx context.Context, key ctxKey, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func fromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}
