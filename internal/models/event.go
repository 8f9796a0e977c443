package models

import "time"

// Event kinds recorded by the automation loops and manual operations.
const (
	EventHeater    = "HEATER"
	EventFan       = "FAN"
	EventLight     = "LIGHT"
	EventFeed      = "FEED"
	EventDose      = "DOSE"
	EventPump      = "PUMP"
	EventMotor     = "MOTOR"
	EventConnect   = "CONNECT"
	EventError     = "ERROR"
	EventEmergency = "EMERGENCY"
)

// DeviceEvent is one telemetry record: a state transition observed or
// caused by the controller, handed to the event log fire-and-forget.
type DeviceEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Kind       string    `json:"kind"`
	Previous   string    `json:"previous,omitempty"`
	Next       string    `json:"next,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	Metadata   any       `json:"metadata,omitempty"`
}
