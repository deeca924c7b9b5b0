package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// StatusEvent is one status message pushed to SSE and websocket clients.
type StatusEvent struct {
	Time  string `json:"t"`
	Level string `json:"l,omitempty"`
	Op    string `json:"op,omitempty"` // rotate, batch, zero, dispense, log
	Msg   string `json:"msg"`
}

// StatusBroadcaster fans status messages out to every subscriber.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	now     func() time.Time
}

func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan []byte]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup.
// The caller must call the cleanup when the client goes away.
func (b *StatusBroadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Subscribers returns the number of connected clients.
func (b *StatusBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends evt to every client. Slow clients miss messages.
func (b *StatusBroadcaster) Publish(evt StatusEvent) {
	if evt.Time == "" {
		evt.Time = b.now().Format(time.RFC3339)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Broadcast publishes a message for an operation.
func (b *StatusBroadcaster) Broadcast(level, op, msg string) {
	b.Publish(StatusEvent{Level: level, Op: op, Msg: msg})
}

// BroadcastWriter returns an io.Writer publishing every written line as a
// "log" event, for teeing the debug logger to status clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.b.Broadcast("info", "log", line)
		}
	}
	return len(p), nil
}
