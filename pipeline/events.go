package pipeline

import (
	"sync"
	"time"
)

// EventType names a pipeline notification
type EventType string

const (
	EventStatus    EventType = "dataset.status"
	EventExplained EventType = "dataset.explained"
	EventCleaned   EventType = "cleaning.completed"
	EventCleanFail EventType = "cleaning.failed"
)

// Event is pushed to subscribers on every status change and clean outcome
type Event struct {
	Type         EventType `json:"type"`
	DatasetID    string    `json:"dataset_id"`
	OwnerID      string    `json:"owner_id"`
	Status       Status    `json:"status,omitempty"`
	Error        string    `json:"error,omitempty"`
	JobID        string    `json:"job_id,omitempty"`
	QualityScore *float64  `json:"quality_score,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Events fans pipeline events out to subscribers. Slow subscribers miss
// events rather than blocking the pipeline.
type Events struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewEvents creates an empty event bus
func NewEvents() *Events {
	return &Events{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a func that closes it
func (e *Events) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber with buffer space
func (e *Events) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
