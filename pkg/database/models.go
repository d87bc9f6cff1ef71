package database

import "time"

// User is a locally administered account whose activity is enforced
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WatchedProcess is a user-registered name (executable or URL-like string)
// subject to time-limit enforcement. LimitSeconds of zero means unlimited.
type WatchedProcess struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	TotalSeconds int64  `json:"total_seconds"`
	LimitSeconds int64  `json:"limit_seconds"`
}

// UsageSample is an automatically discovered name with an accumulating,
// unbounded usage counter, independent of enforcement
type UsageSample struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Seconds int64  `json:"seconds"`
}

// EventKind identifies the side effect a scheduled event fires
type EventKind string

const (
	EventShutdown   EventKind = "computer_shutdown"
	EventLogout     EventKind = "user_logout"
	EventScreenshot EventKind = "screenshot"
)

// TriggerMode determines how a scheduled event's due time is evaluated
type TriggerMode string

const (
	// TriggerAtClockTime fires when the wall-clock minute-of-day equals
	// the trigger value
	TriggerAtClockTime TriggerMode = "clock"
	// TriggerAfterElapsed fires once the configured number of minutes has
	// passed since the event's creation timestamp
	TriggerAfterElapsed TriggerMode = "elapsed"
)

// ScheduledEvent is a per-user shutdown, logout or screenshot trigger.
// CreatedAtMinutes is minutes since the Unix epoch; for repeating
// elapsed-mode events it is reset to "now" each time the event fires.
type ScheduledEvent struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Kind             EventKind   `json:"kind"`
	Mode             TriggerMode `json:"mode"`
	TriggerMinutes   int64       `json:"trigger_minutes"`
	Repeat           bool        `json:"repeat"`
	CreatedAtMinutes int64       `json:"created_at_minutes"`
}

// DailyUsage records the seconds a user spent on one calendar day.
// Rows are written at most once per (user, date) and never updated.
type DailyUsage struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}
