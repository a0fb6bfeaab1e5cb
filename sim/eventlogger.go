package sim

import (
	"log"
	"sort"
	"sync"
)

// An EventLogger is a hook for engines. It counts the events each handler
// receives and, if it has a logger, prints one line per event.
type EventLogger struct {
	logger *log.Logger

	mu     sync.Mutex
	counts map[string]uint64
}

// NewEventLogger returns an EventLogger that writes into logger. A nil
// logger only counts.
func NewEventLogger(logger *log.Logger) *EventLogger {
	return &EventLogger{
		logger: logger,
		counts: make(map[string]uint64),
	}
}

func handlerName(h Handler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}

	return "?"
}

// Func records an event that is about to be handled.
func (h *EventLogger) Func(ctx HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(Event)
	if !ok {
		return
	}

	name := handlerName(evt.Handler())

	h.mu.Lock()
	h.counts[name]++
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Printf("%.10f, %T -> %s", evt.Time(), evt, name)
	}
}

// An EventCount is the number of events one handler received.
type EventCount struct {
	Handler string
	Events  uint64
}

// Counts returns the event count of every handler, busiest first.
func (h *EventLogger) Counts() []EventCount {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]EventCount, 0, len(h.counts))
	for name, n := range h.counts {
		out = append(out, EventCount{Handler: name, Events: n})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Events != out[j].Events {
			return out[i].Events > out[j].Events
		}

		return out[i].Handler < out[j].Handler
	})

	return out
}
