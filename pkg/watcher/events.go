package watcher

import "time"

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventRefreshed      EventType = "refreshed"
	EventLatencyUpdated EventType = "latency_updated"
)

// Event represents a monitoring event.
type Event struct {
	Type EventType
	Data interface{}
}

// Subscriber is a channel that receives events.
type Subscriber chan Event

// RefreshResult is the payload of EventRefreshed.
type RefreshResult struct {
	At  time.Time
	Err string
}
