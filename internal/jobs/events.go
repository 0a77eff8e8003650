package jobs

import (
	"sync"
	"time"

	"voice-converter/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload describing one step of a job's life.
// Sequences are per job and start at 1.
type Event struct {
	Seq       int64            `json:"seq"`
	Timestamp time.Time        `json:"timestamp"`
	JobID     string           `json:"job_id"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Progress  float64          `json:"progress,omitempty"`
	Message   string           `json:"message,omitempty"`
	OutputRef string           `json:"output_ref,omitempty"`
}

// EventLog stores recent events per job and provides incremental reads so
// clients can poll with their last seen sequence.
type EventLog struct {
	mu        sync.RWMutex
	maxEvents int
	byJob     map[string]*jobEvents
}

type jobEvents struct {
	nextSeq int64
	events  []Event
}

// NewEventLog creates a bounded in-memory event log.
func NewEventLog(maxEventsPerJob int) *EventLog {
	if maxEventsPerJob <= 0 {
		maxEventsPerJob = 500
	}
	return &EventLog{
		maxEvents: maxEventsPerJob,
		byJob:     make(map[string]*jobEvents),
	}
}

// Publish appends one event to the job's log and assigns sequence and
// timestamp.
func (l *EventLog) Publish(jobID string, event Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	log, ok := l.byJob[jobID]
	if !ok {
		log = &jobEvents{events: make([]Event, 0, l.maxEvents)}
		l.byJob[jobID] = log
	}

	log.nextSeq++
	event.Seq = log.nextSeq
	event.JobID = jobID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	log.events = append(log.events, event)
	if len(log.events) > l.maxEvents {
		trim := len(log.events) - l.maxEvents
		log.events = append([]Event(nil), log.events[trim:]...)
	}
	return event
}

// Since returns the job's events with sequence strictly greater than seq.
func (l *EventLog) Since(jobID string, seq int64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	log, ok := l.byJob[jobID]
	if !ok || len(log.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(log.events))
	for _, event := range log.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Drop discards a job's event history.
func (l *EventLog) Drop(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.byJob, jobID)
}
