package types

import "time"

type EventType string

const (
	EventStarted     EventType = "Started"
	EventChanged     EventType = "AddressChanged"
	EventHeartbeat   EventType = "Heartbeat"
	EventRemediation EventType = "Remediation"
)

// Event is a single notification handed to the sinks. An empty IP or Message is
// delivered as JSON null to the API sink.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	IP        string    `json:"ip,omitempty"`
	Message   string    `json:"message,omitempty"`
}
