package dashboard

import (
	"sync"

	"github.com/emberhill/turnsense/internal/eventlog"
	"github.com/emberhill/turnsense/pkg/turn"
)

// subscriberBuffer is the per-subscriber event queue depth. A subscriber that
// falls further behind than this starts losing events rather than stalling
// the publishers, which include the capture thread.
const subscriberBuffer = 64

// Event is one state-change notification pushed to /events subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans events out to any number of WebSocket subscribers. Publishing
// never blocks; slow subscribers drop events.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Publish delivers ev to every current subscriber, dropping it for any
// subscriber whose queue is full.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// Callbacks returns detector callbacks that publish each state change to the
// hub. Callers who need their own callbacks as well can wrap the returned
// struct's fields.
func Callbacks(hub *Hub) turn.Callbacks {
	return turn.Callbacks{
		OnRecordingChanged: func(recording bool) {
			hub.Publish(Event{Type: "recording", Payload: recording})
		},
		OnLevelChanged: func(level float32) {
			hub.Publish(Event{Type: "level", Payload: level})
		},
		OnBufferDurationChanged: func(seconds float64) {
			hub.Publish(Event{Type: "buffer_duration", Payload: seconds})
		},
		OnSpeechResumed: func() {
			hub.Publish(Event{Type: "speech_resumed"})
		},
		OnDetectionResult: func(r turn.Result) {
			hub.Publish(Event{Type: "detection", Payload: r})
		},
		OnResultCleared: func() {
			hub.Publish(Event{Type: "result_cleared"})
		},
	}
}

// BindEventLog forwards every event-log append to the hub as a "log" event.
func BindEventLog(log *eventlog.Log, hub *Hub) {
	log.OnAppend(func(e eventlog.Entry) {
		hub.Publish(Event{Type: "log", Payload: e})
	})
}
