package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/nwtk/flowrec/internal/model"
)

// EventKind selects which lifecycle moments a handler observes.
type EventKind string

const (
	SessionStarted   EventKind = "session_started"
	SessionCompleted EventKind = "session_completed"
	ActionRecorded   EventKind = "action_recorded"
)

// Event is delivered to subscribed handlers. Flow is set for session events,
// Action for action events; both are snapshots for display, not live state.
type Event struct {
	Kind   EventKind
	FlowID string
	Flow   *model.Flow
	Action *model.Action
}

type Handler func(Event)

// Hub fans lifecycle events out to registered handlers. Delivery is
// synchronous on the publishing goroutine, in registration order. A handler
// panic is recovered and logged; it never aborts the publishing operation or
// the remaining handlers. Notification is diagnostic, not part of the
// recording contract.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[EventKind][]Handler
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		handlers: make(map[EventKind][]Handler),
	}
}

// Subscribe registers a handler for one event kind. There is no unsubscribe:
// hub lifetime matches the recorder that owns it.
func (h *Hub) Subscribe(kind EventKind, fn Handler) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	h.handlers[kind] = append(h.handlers[kind], fn)
	h.mu.Unlock()
}

// Publish delivers ev to every handler registered for its kind.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	handlers := h.handlers[ev.Kind]
	h.mu.RUnlock()

	for _, fn := range handlers {
		h.deliver(ev, fn)
	}
}

func (h *Hub) deliver(ev Event, fn Handler) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("notification handler failed",
				"event", string(ev.Kind),
				"flow_id", ev.FlowID,
				"error", fmt.Sprint(r))
		}
	}()
	fn(ev)
}
