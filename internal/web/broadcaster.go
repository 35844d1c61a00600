package web

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/PhotoBooth/internal/logic/capture"
)

// StatusEvent represents a single status message for SSE. Session events
// carry the structured event alongside the human readable message.
type StatusEvent struct {
	Time  string         `json:"t"`
	Level string         `json:"l,omitempty"`
	Msg   string         `json:"msg"`
	Event *capture.Event `json:"event,omitempty"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
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

// Clients returns the number of subscribers.
func (b *StatusBroadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// Notify implements capture.Notifier. It never blocks.
func (b *StatusBroadcaster) Notify(ev capture.Event) {
	b.publish(eventStatus(ev))
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	payload, ok := b.encode(evt)
	if !ok {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

func (b *StatusBroadcaster) encode(evt StatusEvent) (string, bool) {
	evt.Time = b.now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// eventStatus wraps a session event with its level and message.
func eventStatus(ev capture.Event) StatusEvent {
	level := "info"
	var msg string
	switch ev.Kind {
	case capture.EventState:
		msg = "State: " + ev.State
	case capture.EventCountdown:
		msg = fmt.Sprintf("Shot %d/%d in %d", ev.Shot, ev.Total, ev.Remaining)
	case capture.EventShot:
		msg = fmt.Sprintf("Shot %d/%d taken", ev.Shot, ev.Total)
	case capture.EventPhoto:
		msg = "Photo ready"
	case capture.EventError:
		level = "error"
		msg = ev.Error
	case capture.EventCameraStarted:
		msg = "Camera started"
	case capture.EventCameraStopped:
		msg = "Camera stopped"
		if ev.Reason != "" {
			msg += " (" + ev.Reason + ")"
		}
	case capture.EventSettings:
		msg = "Settings updated"
	default:
		msg = string(ev.Kind)
	}
	return StatusEvent{Level: level, Msg: msg, Event: &ev}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with log.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
