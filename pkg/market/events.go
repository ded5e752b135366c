package market

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventConnectionChanged  EventType = "connection_changed"
	EventStatusChanged      EventType = "status_changed"
	EventCatalogUpdated     EventType = "catalog_updated"
	EventOwnedUpdated       EventType = "owned_updated"
	EventPhaseChanged       EventType = "phase_changed"
	EventNotification       EventType = "notification"
	EventDiagnosticsUpdated EventType = "diagnostics_updated"
)

// Event represents a session state change.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
