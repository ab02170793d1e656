package model

import "time"

// EventKind identifies what a worker is reporting
type EventKind string

const (
	EventLog       EventKind = "log"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventCanceled  EventKind = "canceled"
)

// Event is delivered to the caller over a channel, never by invoking caller
// code on the worker goroutine.
type Event struct {
	JobID    string
	Kind     EventKind
	Message  string
	Progress *Progress
	Time     time.Time
}

// IsTerminal returns true for completed and canceled events
func (e Event) IsTerminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventCanceled
}

// NewLogEvent creates a log event for a job
func NewLogEvent(jobID, message string) Event {
	return Event{JobID: jobID, Kind: EventLog, Message: message, Time: time.Now()}
}

// NewProgressEvent creates a progress event for a job
func NewProgressEvent(jobID string, p Progress) Event {
	return Event{JobID: jobID, Kind: EventProgress, Progress: &p, Time: time.Now()}
}

// NewTerminalEvent creates a completed or canceled event
func NewTerminalEvent(jobID string, kind EventKind) Event {
	return Event{JobID: jobID, Kind: kind, Time: time.Now()}
}
