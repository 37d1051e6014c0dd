package storage

import "time"

// Event is one audit log entry: a single message either sent by a user
// or produced by the assistant. TurnID ties the two sides of a turn
// together. Events are appended in chronological order and never read
// back by the core for correctness, only for reporting.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	TurnID    string    `json:"turn_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
}

// Recorder abstracts the append-only audit log sink.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Append(event Event) error
	LoadEvents() ([]Event, error)
}
