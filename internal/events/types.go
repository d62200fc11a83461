// Package events provides event management functionality.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	SyncStateChanged EventType = "SYNC_STATE_CHANGED"
	SyncCompleted    EventType = "SYNC_COMPLETED"
	SyncFailed       EventType = "SYNC_FAILED"
	SyncRejected     EventType = "SYNC_REJECTED"
	PortfolioChanged EventType = "PORTFOLIO_CHANGED"
	SettingsChanged  EventType = "SETTINGS_CHANGED"
	ErrorOccurred    EventType = "ERROR_OCCURRED"
)

// AllEventTypes lists every event type, used by stream subscribers
var AllEventTypes = []EventType{
	SyncStateChanged,
	SyncCompleted,
	SyncFailed,
	SyncRejected,
	PortfolioChanged,
	SettingsChanged,
	ErrorOccurred,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
