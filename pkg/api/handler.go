package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sciffer/timewarden/internal/logger"
	"github.com/sciffer/timewarden/pkg/database"
	"github.com/sciffer/timewarden/pkg/engine"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db     *database.DB
	queue  *database.WriteQueue
	engine *engine.Engine
	logger *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(db *database.DB, queue *database.WriteQueue, eng *engine.Engine, log *logger.Logger) *Handler {
	return &Handler{
		db:     db,
		queue:  queue,
		engine: eng,
		logger: log,
	}
}

// HealthCheck handles GET /healthz. Returns 503 when either the store or
// the write queue is down.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbHealthy := h.db.Healthy(ctx) == nil
	queueHealthy := h.queue.Healthy()

	resp := HealthResponse{
		Status:     "healthy",
		Database:   dbHealthy,
		WriteQueue: queueHealthy,
		QueueDepth: h.queue.Depth(),
	}

	statusCode := http.StatusOK
	if !dbHealthy || !queueHealthy {
		resp.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	h.respondJSON(w, statusCode, resp)
}

// GetStatus handles GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{QueueDepth: h.queue.Depth()}

	if user := h.engine.Session(); user != nil {
		resp.SessionUser = user.Name
		resp.SessionID = user.ID

		procs, err := h.db.ListProcesses(ctx, user.ID)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "failed to list processes", err)
			return
		}
		events, err := h.db.ListEvents(ctx, user.ID)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "failed to list events", err)
			return
		}
		resp.ProcessCount = len(procs)
		resp.EventCount = len(events)
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("name is required"))
		return
	}

	h.enqueue(w, database.CreateUser{UserName: req.Name, IP: req.IP})
}

// ListUsers handles GET /users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list users", err)
		return
	}
	h.respondJSON(w, http.StatusOK, users)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	h.enqueue(w, database.DeleteUser{UserID: userID})
}

// SelectUser handles POST /users/{name}/select and makes the named user
// the enforcement target
func (h *Handler) SelectUser(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.engine.SwitchUser(r.Context(), name); err != nil {
		h.respondError(w, http.StatusNotFound, "failed to switch user", err)
		return
	}

	h.logger.Info("session user switched via api", zap.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}

// ListProcesses handles GET /users/{id}/processes
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	procs, err := h.db.ListProcesses(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list processes", err)
		return
	}
	h.respondJSON(w, http.StatusOK, procs)
}

// RegisterProcess handles POST /users/{id}/processes
func (h *Handler) RegisterProcess(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req RegisterProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("name is required"))
		return
	}
	if req.LimitSeconds < 0 {
		h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("limit_seconds must not be negative"))
		return
	}

	h.enqueue(w, database.RegisterProcess{
		UserID:       userID,
		ProcessName:  req.Name,
		LimitSeconds: req.LimitSeconds,
	})
}

// UpdateProcess handles PUT /processes/{id}. Rename and limit changes are
// independent commands; a request may carry either or both.
func (h *Handler) UpdateProcess(w http.ResponseWriter, r *http.Request) {
	procID := mux.Vars(r)["id"]

	var req UpdateProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == nil && req.LimitSeconds == nil {
		h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("nothing to update"))
		return
	}

	if req.Name != nil {
		if *req.Name == "" {
			h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("name must not be empty"))
			return
		}
		if !h.queue.Enqueue(database.RenameProcess{ProcessID: procID, NewName: *req.Name}) {
			h.respondError(w, http.StatusServiceUnavailable, "write queue is closed", fmt.Errorf("enqueue rejected"))
			return
		}
	}
	if req.LimitSeconds != nil {
		if *req.LimitSeconds < 0 {
			h.respondError(w, http.StatusBadRequest, "validation failed", fmt.Errorf("limit_seconds must not be negative"))
			return
		}
		if !h.queue.Enqueue(database.SetTimeLimit{ProcessID: procID, LimitSeconds: *req.LimitSeconds}) {
			h.respondError(w, http.StatusServiceUnavailable, "write queue is closed", fmt.Errorf("enqueue rejected"))
			return
		}
	}

	h.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", Command: "update_process"})
}

// DeleteProcess handles DELETE /processes/{id}
func (h *Handler) DeleteProcess(w http.ResponseWriter, r *http.Request) {
	procID := mux.Vars(r)["id"]
	h.enqueue(w, database.RemoveProcess{ProcessID: procID})
}

// ListEvents handles GET /users/{id}/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	events, err := h.db.ListEvents(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list events", err)
		return
	}
	h.respondJSON(w, http.StatusOK, events)
}

// CreateEvent handles POST /users/{id}/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	kind, mode, err := validateEvent(req.Kind, req.Mode, req.TriggerMinutes)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	h.enqueue(w, database.AddEvent{
		UserID:           userID,
		Kind:             kind,
		Mode:             mode,
		TriggerMinutes:   req.TriggerMinutes,
		Repeat:           req.Repeat,
		CreatedAtMinutes: time.Now().Unix() / 60,
	})
}

// UpdateEvent handles PUT /events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["id"]

	var req UpdateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	kind, mode, err := validateEvent(req.Kind, req.Mode, req.TriggerMinutes)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	h.enqueue(w, database.UpdateEvent{
		EventID:        eventID,
		Kind:           kind,
		Mode:           mode,
		TriggerMinutes: req.TriggerMinutes,
		Repeat:         req.Repeat,
	})
}

// DeleteEvent handles DELETE /events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := mux.Vars(r)["id"]
	h.enqueue(w, database.RemoveEvent{EventID: eventID})
}

// ListUsage handles GET /users/{id}/usage
func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	samples, err := h.db.ListUsageSamples(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list usage samples", err)
		return
	}
	h.respondJSON(w, http.StatusOK, samples)
}

// ListDailyUsage handles GET /users/{id}/daily
func (h *Handler) ListDailyUsage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]

	daily, err := h.db.ListDailyUsage(r.Context(), userID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list daily usage", err)
		return
	}
	h.respondJSON(w, http.StatusOK, daily)
}

// Helper functions

func validateEvent(kind, mode string, triggerMinutes int64) (database.EventKind, database.TriggerMode, error) {
	k := database.EventKind(kind)
	switch k {
	case database.EventShutdown, database.EventLogout, database.EventScreenshot:
	default:
		return "", "", fmt.Errorf("unknown event kind %q", kind)
	}

	m := database.TriggerMode(mode)
	switch m {
	case database.TriggerAtClockTime:
		if triggerMinutes < 0 || triggerMinutes > 1439 {
			return "", "", fmt.Errorf("clock trigger must be in [0, 1439], got %d", triggerMinutes)
		}
	case database.TriggerAfterElapsed:
		if triggerMinutes <= 0 {
			return "", "", fmt.Errorf("elapsed trigger must be positive, got %d", triggerMinutes)
		}
	default:
		return "", "", fmt.Errorf("unknown trigger mode %q", mode)
	}

	return k, m, nil
}

// enqueue submits a write command and answers 202, or 503 when the queue
// has been closed during shutdown
func (h *Handler) enqueue(w http.ResponseWriter, cmd database.Command) {
	if !h.queue.Enqueue(cmd) {
		h.respondError(w, http.StatusServiceUnavailable, "write queue is closed", fmt.Errorf("enqueue rejected"))
		return
	}
	h.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", Command: cmd.String()})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string, err error) {
	h.logger.Error(message, zap.Error(err))

	errResp := ErrorResponse{
		Error:   message,
		Message: err.Error(),
		Code:    status,
	}

	h.respondJSON(w, status, errResp)
}
