package events

// EventData is the interface that all typed event payloads implement
type EventData interface {
	EventType() EventType
}

// SyncStateChangedData is emitted on every sync state machine transition
type SyncStateChangedData struct {
	AttemptID string `json:"attempt_id"`
	Trigger   string `json:"trigger"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// EventType returns the event type for SyncStateChangedData
func (d *SyncStateChangedData) EventType() EventType {
	return SyncStateChanged
}

// SyncCompletedData is emitted after a successful commit
type SyncCompletedData struct {
	AttemptID     string `json:"attempt_id"`
	Trigger       string `json:"trigger"`
	PositionCount int    `json:"position_count"`
	TradeCount    int    `json:"trade_count"`
	RejectedCount int    `json:"rejected_count"`
	DurationMs    int64  `json:"duration_ms"`
}

// EventType returns the event type for SyncCompletedData
func (d *SyncCompletedData) EventType() EventType {
	return SyncCompleted
}

// SyncFailedData is emitted when an attempt aborts without committing
type SyncFailedData struct {
	AttemptID string `json:"attempt_id"`
	Trigger   string `json:"trigger"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// EventType returns the event type for SyncFailedData
func (d *SyncFailedData) EventType() EventType {
	return SyncFailed
}

// SyncRejectedData is emitted when a trigger is refused before any network call
type SyncRejectedData struct {
	Trigger string `json:"trigger"`
	Reason  string `json:"reason"`
}

// EventType returns the event type for SyncRejectedData
func (d *SyncRejectedData) EventType() EventType {
	return SyncRejected
}

// PortfolioChangedData is emitted when positions or trades change
type PortfolioChangedData struct {
	Source string `json:"source"` // "sync" or "manual"
}

// EventType returns the event type for PortfolioChangedData
func (d *PortfolioChangedData) EventType() EventType {
	return PortfolioChanged
}

// SettingsChangedData lists the settings keys that were written
type SettingsChangedData struct {
	Keys []string `json:"keys"`
}

// EventType returns the event type for SettingsChangedData
func (d *SettingsChangedData) EventType() EventType {
	return SettingsChanged
}

// ErrorEventData carries an error and optional context
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
