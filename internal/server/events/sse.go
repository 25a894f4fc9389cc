package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultKeepAlive is the interval between keep-alive comments.
const DefaultKeepAlive = 30 * time.Second

// Listener is one open push stream.
type Listener struct {
	ID     string
	Events chan *Event
	done   chan struct{}
	once   sync.Once
}

// NewListener creates a listener with the given buffer size.
func NewListener(id string, buffer int) *Listener {
	return &Listener{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// Send queues an event without blocking. It reports false when the
// listener is closed or its buffer is full.
func (l *Listener) Send(event *Event) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.Events <- event:
		return true
	default:
		// Client buffer full, skip
		return false
	}
}

// Close ends the stream. Safe to call more than once.
func (l *Listener) Close() {
	l.once.Do(func() { close(l.done) })
}

// Done is closed by Close.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// SetHeaders writes the SSE response headers.
func SetHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// Write sends one event and flushes.
func Write(w io.Writer, flusher http.Flusher, event *Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// Stream serves a push stream until ctx ends or the listener closes.
// hello, if not nil, is sent first.
func Stream(ctx context.Context, w http.ResponseWriter, l *Listener, keepAlive time.Duration, hello *Event) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	SetHeaders(w)
	w.WriteHeader(http.StatusOK)

	if hello != nil {
		if err := Write(w, flusher, hello); err != nil {
			return err
		}
	} else {
		flusher.Flush()
	}

	// Keep-alive ticker
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-l.Done():
			return nil

		case event := <-l.Events:
			if err := Write(w, flusher, event); err != nil {
				return err
			}

		case <-ticker.C:
			// Send keep-alive comment
			if _, err := fmt.Fprintf(w, ": keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}
