// Package events defines the event types published while checks run and the
// bus that delivers them to the API stream, telemetry and notifiers.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Check lifecycle events
	EventCheckStarted   EventType = "check_started"
	EventCheckProgress  EventType = "check_progress"
	EventCheckCompleted EventType = "check_completed"

	// History events
	EventHistoryPruned EventType = "history_pruned"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// CheckEventTypes lists the events streamed to API clients.
var CheckEventTypes = []EventType{
	EventCheckStarted,
	EventCheckProgress,
	EventCheckCompleted,
}

// CheckStage names a step of a running check.
type CheckStage string

const (
	StageResolvingProfile CheckStage = "resolving_profile"
	StageConnecting       CheckStage = "connecting"
	StageParsing          CheckStage = "parsing"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// New creates an event stamped with the current time.
func New(eventType EventType, source string, payload interface{}) Event {
	return Event{
		Type:    eventType,
		Source:  source,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// CheckStartedPayload is emitted when a check begins. It never carries the
// access token.
type CheckStartedPayload struct {
	CheckID string `json:"check_id"`
}

// CheckProgressPayload reports that a check moved to a new stage.
type CheckProgressPayload struct {
	CheckID string     `json:"check_id"`
	Stage   CheckStage `json:"stage"`
	MCName  string     `json:"mc_name,omitempty"`
}

// CheckCompletedPayload summarises a finished check. Error is set when the
// profile could not be resolved and no result was produced.
type CheckCompletedPayload struct {
	CheckID    string        `json:"check_id"`
	MCName     string        `json:"mc_name,omitempty"`
	MCUUID     string        `json:"mc_uuid,omitempty"`
	Status     string        `json:"status,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	TimeLeft   string        `json:"time_left,omitempty"`
	BanID      string        `json:"ban_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	FinishedAt time.Time     `json:"finished_at"`
}

// HistoryPrunedPayload reports a retention cleanup run.
type HistoryPrunedPayload struct {
	Removed int64     `json:"removed"`
	Before  time.Time `json:"before"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}
