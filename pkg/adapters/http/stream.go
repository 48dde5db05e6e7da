package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/scenaria/internal/logging"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{} // ScenarioID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan Message]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel for the scenario. The returned
// function unregisters and closes it.
func (sm *StreamManager) Subscribe(scenarioID string) (<-chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 10)
	if _, ok := sm.subscribers[scenarioID]; !ok {
		sm.subscribers[scenarioID] = make(map[chan Message]struct{})
	}
	sm.subscribers[scenarioID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[scenarioID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, scenarioID)
			}
		}
	}
}

// Publish encodes v and sends it to every subscriber of the scenario.
// Slow subscribers miss messages instead of blocking the request.
func (sm *StreamManager) Publish(scenarioID, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("SSE: encode failed", "scenario_id", scenarioID, "err", err)
		return
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[scenarioID] {
		select {
		case ch <- Message{Event: event, Data: string(data)}:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message", "scenario_id", scenarioID)
		}
	}
}

// Subscribers returns the number of open streams of the scenario.
func (sm *StreamManager) Subscribers(scenarioID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[scenarioID])
}
