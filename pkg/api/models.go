package api

// ErrorResponse is the JSON body returned for every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// AcceptedResponse acknowledges a write that was queued for asynchronous
// persistence
type AcceptedResponse struct {
	Status  string `json:"status"`
	Command string `json:"command"`
}

// HealthResponse reports store and queue health
type HealthResponse struct {
	Status     string `json:"status"`
	Database   bool   `json:"database"`
	WriteQueue bool   `json:"write_queue"`
	QueueDepth int    `json:"queue_depth"`
}

// StatusResponse summarizes the current enforcement session
type StatusResponse struct {
	SessionUser  string `json:"session_user,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	ProcessCount int    `json:"process_count"`
	EventCount   int    `json:"event_count"`
	QueueDepth   int    `json:"queue_depth"`
}

// CreateUserRequest is the body of POST /users
type CreateUserRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
}

// RegisterProcessRequest is the body of POST /users/{id}/processes
type RegisterProcessRequest struct {
	Name         string `json:"name"`
	LimitSeconds int64  `json:"limit_seconds"`
}

// UpdateProcessRequest is the body of PUT /processes/{id}. A nil field
// leaves the corresponding attribute unchanged.
type UpdateProcessRequest struct {
	Name         *string `json:"name,omitempty"`
	LimitSeconds *int64  `json:"limit_seconds,omitempty"`
}

// CreateEventRequest is the body of POST /users/{id}/events
type CreateEventRequest struct {
	Kind           string `json:"kind"`
	Mode           string `json:"mode"`
	TriggerMinutes int64  `json:"trigger_minutes"`
	Repeat         bool   `json:"repeat"`
}

// UpdateEventRequest is the body of PUT /events/{id}
type UpdateEventRequest struct {
	Kind           string `json:"kind"`
	Mode           string `json:"mode"`
	TriggerMinutes int64  `json:"trigger_minutes"`
	Repeat         bool   `json:"repeat"`
}
