// Package notify broadcasts pipeline events to interested subscribers. The
// API server relays them to clients over server-sent events.
package notify

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Event names emitted by the pipeline stages.
const (
	EventDomainUpdated       = "domainUpdated"
	EventReconUpdate         = "reconUpdate"
	EventSourceUpdate        = "sourceUpdate"
	EventSourceMined         = "sourceMined"
	EventSourceFailed        = "sourceFailed"
	EventProfileGenerated    = "profileGenerated"
	EventTargetStatusUpdated = "targetStatusUpdated"
	EventPretextGenerated    = "pretextGenerated"
	EventTargetDeleted       = "targetDeleted"
)

// Event is a named payload pushed to subscribers.
type Event struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Notifier is the emit side of the hub. Stages depend on this interface so
// tests can capture events.
type Notifier interface {
	Emit(event string, payload any)
}

// Hub fans events out to subscribers. Slow subscribers drop events rather
// than block the pipeline.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Emit serializes the payload and delivers the event to every subscriber.
func (h *Hub) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("event payload marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	e := Event{Name: event, Payload: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			zap.L().Debug("dropping event for slow subscriber", zap.String("event", event))
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Nop is a Notifier that discards everything. Used by CLI commands that run a
// stage once without an event consumer.
type Nop struct{}

func (Nop) Emit(string, any) {}
