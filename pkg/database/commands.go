package database

// CreateUser inserts a new user unless the name is already taken
type CreateUser struct {
	UserName string
	IP       string
}

func (CreateUser) String() string { return "create_user" }

// DeleteUser removes a user and everything owned by it: watched processes,
// their time limits, scheduled events, usage samples and daily records
type DeleteUser struct {
	UserID string
}

func (DeleteUser) String() string { return "delete_user" }

// RegisterProcess inserts a watched process and sets its time limit as one
// ordered unit, so no unrelated command can interleave between the insert
// and the limit write
type RegisterProcess struct {
	UserID       string
	ProcessName  string
	LimitSeconds int64
}

func (RegisterProcess) String() string { return "register_process" }

// RenameProcess changes a watched process's name
type RenameProcess struct {
	ProcessID string
	NewName   string
}

func (RenameProcess) String() string { return "rename_process" }

// SetTimeLimit inserts or updates the limit for a watched process
type SetTimeLimit struct {
	ProcessID    string
	LimitSeconds int64
}

func (SetTimeLimit) String() string { return "set_time_limit" }

// AddProcessTime increments a watched process's accumulated seconds
type AddProcessTime struct {
	ProcessID string
	Seconds   int64
}

func (AddProcessTime) String() string { return "add_process_time" }

// RemoveProcess deletes a watched process and its time limit
type RemoveProcess struct {
	ProcessID string
}

func (RemoveProcess) String() string { return "remove_process" }

// EnsureUsageSample inserts a zero-second usage sample for (user, name)
// if none exists; a duplicate is swallowed, not an error
type EnsureUsageSample struct {
	UserID     string
	SampleName string
}

func (EnsureUsageSample) String() string { return "ensure_usage_sample" }

// AddUsageTime increments an existing usage sample's counter
type AddUsageTime struct {
	UserID     string
	SampleName string
	Seconds    int64
}

func (AddUsageTime) String() string { return "add_usage_time" }

// AddEvent inserts a scheduled event; a second event of the same kind for
// the same user is a logged no-op
type AddEvent struct {
	UserID           string
	Kind             EventKind
	Mode             TriggerMode
	TriggerMinutes   int64
	Repeat           bool
	CreatedAtMinutes int64
}

func (AddEvent) String() string { return "add_event" }

// UpdateEvent rewrites an event's trigger configuration
type UpdateEvent struct {
	EventID        string
	Kind           EventKind
	Mode           TriggerMode
	TriggerMinutes int64
	Repeat         bool
}

func (UpdateEvent) String() string { return "update_event" }

// RemoveEvent deletes an event after it fired (or on user request)
type RemoveEvent struct {
	EventID string
}

func (RemoveEvent) String() string { return "remove_event" }

// ResetEventClock re-arms a repeating elapsed-mode event by moving its
// creation timestamp to the firing moment
type ResetEventClock struct {
	EventID          string
	CreatedAtMinutes int64
}

func (ResetEventClock) String() string { return "reset_event_clock" }

// InsertDailyUsage writes one immutable daily usage record
type InsertDailyUsage struct {
	UserID  string
	Date    string
	Seconds int64
}

func (InsertDailyUsage) String() string { return "insert_daily_usage" }
