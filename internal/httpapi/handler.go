package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"qfree/queue-service/internal/metrics"
	"qfree/queue-service/internal/models"
	"qfree/queue-service/internal/service"
	"qfree/queue-service/internal/store"

	"github.com/sirupsen/logrus"
)

const maxEventPage = 500

// QueueService is what the handlers need from the service layer.
type QueueService interface {
	CreateQueue(ctx context.Context, input store.CreateQueueInput) (models.Queue, error)
	UpdateQueue(ctx context.Context, queueID string, update store.QueueUpdate) (models.Queue, error)
	DeleteQueue(ctx context.Context, queueID string) (bool, error)
	ListQueues(ctx context.Context, filter store.ListQueuesFilter) ([]models.Queue, error)
	GetQueue(ctx context.Context, queueID string) (models.Queue, bool, error)
	GetQueueView(ctx context.Context, queueID string) (service.QueueView, bool, error)
	Join(ctx context.Context, req service.JoinRequest) (models.Queue, error)
	Leave(ctx context.Context, queueID, userID string) (models.Queue, error)
	RemovePerson(ctx context.Context, queueID, personID string) (models.Queue, error)
	CallNext(ctx context.Context, queueID string) (models.Queue, error)
	FindUserQueue(ctx context.Context, userID string) (models.Queue, bool, error)
	PredictWaitTime(ctx context.Context, queueID string) (int, bool, error)
	FindStaffQueueAssignments(ctx context.Context, locationID string) ([]service.StaffAssignment, error)
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]store.QueueEvent, error)
	GetLocation(ctx context.Context, locationID string) (models.Location, bool, error)
	ListLocations(ctx context.Context, category string) ([]models.Location, error)
	CreateLocation(ctx context.Context, input store.CreateLocationInput) (models.Location, error)
	ListStaff(ctx context.Context, locationID string) ([]models.Staff, error)
	CreateStaff(ctx context.Context, input store.CreateStaffInput) (models.Staff, error)
}

type Handler struct {
	svc      QueueService
	adminKey string
	logger   *logrus.Logger
	realtime http.Handler
}

type Options struct {
	// AdminAPIKey guards staff-only endpoints; empty leaves them open.
	AdminAPIKey string
	Logger      *logrus.Logger
	// Realtime, when set, is mounted under /realtime/.
	Realtime http.Handler
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type joinRequest struct {
	Name   string `json:"name"`
	UserID string `json:"userId"`
}

type leaveRequest struct {
	UserID string `json:"userId"`
}

// optionalString tells an absent JSON field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type updateQueueRequest struct {
	Name                      *string        `json:"name"`
	LocationID                *string        `json:"locationId"`
	AverageServiceTimeMinutes *int           `json:"averageServiceTimeMinutes"`
	ImageURL                  *string        `json:"imageUrl"`
	ManagedByStaffID          optionalString `json:"managedByStaffId"`
}

func (r updateQueueRequest) toUpdate() store.QueueUpdate {
	update := store.QueueUpdate{
		Name:                      r.Name,
		LocationID:                r.LocationID,
		AverageServiceTimeMinutes: r.AverageServiceTimeMinutes,
		ImageURL:                  r.ImageURL,
	}
	if r.ManagedByStaffID.Set {
		if r.ManagedByStaffID.Value == nil || strings.TrimSpace(*r.ManagedByStaffID.Value) == "" {
			update.ClearManagedBy = true
		} else {
			staffID := strings.TrimSpace(*r.ManagedByStaffID.Value)
			update.ManagedByStaffID = &staffID
		}
	}
	return update
}

type deleteResponse struct {
	Deleted bool `json:"deleted"`
}

type waitTimeResponse struct {
	QueueID              string `json:"queueId"`
	EstimatedWaitMinutes int    `json:"estimatedWaitMinutes"`
}

func NewHandler(svc QueueService, options Options) *Handler {
	logger := options.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		svc:      svc,
		adminKey: strings.TrimSpace(options.AdminAPIKey),
		logger:   logger,
		realtime: options.Realtime,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/api/queues", h.handleQueues)
	mux.HandleFunc("/api/queues/", h.handleQueueRoutes)
	mux.HandleFunc("/api/users/", h.handleUserQueue)
	mux.HandleFunc("/api/locations", h.handleLocations)
	mux.HandleFunc("/api/locations/", h.handleLocationRoutes)
	mux.HandleFunc("/api/events", h.handleEvents)
	if h.realtime != nil {
		mux.Handle("/realtime/", h.realtime)
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleQueues(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		locationID := strings.TrimSpace(r.URL.Query().Get("locationId"))
		queues, err := h.svc.ListQueues(r.Context(), store.ListQueuesFilter{LocationID: locationID})
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queues)
	case http.MethodPost:
		if !h.requireAdmin(w, r) {
			return
		}
		var req store.CreateQueueInput
		if !decodeRequest(w, r, &req) {
			return
		}
		req.LocationID = strings.TrimSpace(req.LocationID)
		queue, err := h.svc.CreateQueue(r.Context(), req)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, queue)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleQueueRoutes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/queues/")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	queueID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleQueue(w, r, queueID)
	case len(parts) == 2 && parts[1] == "join":
		h.handleJoin(w, r, queueID)
	case len(parts) == 2 && parts[1] == "leave":
		h.handleLeave(w, r, queueID)
	case len(parts) == 2 && parts[1] == "call-next":
		h.handleCallNext(w, r, queueID)
	case len(parts) == 2 && parts[1] == "wait-time":
		h.handleWaitTime(w, r, queueID)
	case len(parts) == 3 && parts[1] == "people":
		h.handleRemovePerson(w, r, queueID, parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request, queueID string) {
	switch r.Method {
	case http.MethodGet:
		queue, found, err := h.svc.GetQueueView(r.Context(), queueID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if !found {
			h.writeStoreError(w, r, store.ErrQueueNotFound)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	case http.MethodPatch:
		if !h.requireAdmin(w, r) {
			return
		}
		var req updateQueueRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		queue, err := h.svc.UpdateQueue(r.Context(), queueID, req.toUpdate())
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, queue)
	case http.MethodDelete:
		if !h.requireAdmin(w, r) {
			return
		}
		deleted, err := h.svc.DeleteQueue(r.Context(), queueID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, deleteResponse{Deleted: deleted})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req joinRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	queue, err := h.svc.Join(r.Context(), service.JoinRequest{QueueID: queueID, Name: req.Name, UserID: req.UserID})
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req leaveRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "userId is required")
		return
	}
	queue, err := h.svc.Leave(r.Context(), queueID, req.UserID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}
	queue, err := h.svc.CallNext(r.Context(), queueID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleRemovePerson(w http.ResponseWriter, r *http.Request, queueID, personID string) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.requireAdmin(w, r) {
		return
	}
	queue, err := h.svc.RemovePerson(r.Context(), queueID, personID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleWaitTime(w http.ResponseWriter, r *http.Request, queueID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	minutes, found, err := h.svc.PredictWaitTime(r.Context(), queueID)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !found {
		h.writeStoreError(w, r, store.ErrQueueNotFound)
		return
	}
	writeJSON(w, http.StatusOK, waitTimeResponse{QueueID: queueID, EstimatedWaitMinutes: minutes})
}

func (h *Handler) handleUserQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := pathParts(r.URL.Path, "/api/users/")
	if len(parts) != 2 || parts[1] != "queue" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	queue, found, err := h.svc.FindUserQueue(r.Context(), parts[0])
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, queue)
}

func (h *Handler) handleLocations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		category := strings.TrimSpace(r.URL.Query().Get("category"))
		locations, err := h.svc.ListLocations(r.Context(), category)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, locations)
	case http.MethodPost:
		if !h.requireAdmin(w, r) {
			return
		}
		var req store.CreateLocationInput
		if !decodeRequest(w, r, &req) {
			return
		}
		location, err := h.svc.CreateLocation(r.Context(), req)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, location)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleLocationRoutes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/locations/")
	if len(parts) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	locationID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		location, found, err := h.svc.GetLocation(r.Context(), locationID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		if !found {
			h.writeStoreError(w, r, store.ErrLocationNotFound)
			return
		}
		writeJSON(w, http.StatusOK, location)
	case len(parts) == 2 && parts[1] == "staff":
		h.handleStaff(w, r, locationID)
	case len(parts) == 2 && parts[1] == "staff-assignments":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		assignments, err := h.svc.FindStaffQueueAssignments(r.Context(), locationID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignments)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleStaff(w http.ResponseWriter, r *http.Request, locationID string) {
	switch r.Method {
	case http.MethodGet:
		staff, err := h.svc.ListStaff(r.Context(), locationID)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, staff)
	case http.MethodPost:
		if !h.requireAdmin(w, r) {
			return
		}
		var req store.CreateStaffInput
		if !decodeRequest(w, r, &req) {
			return
		}
		req.LocationID = locationID
		member, err := h.svc.CreateStaff(r.Context(), req)
		if err != nil {
			h.writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, member)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var after int64
	if afterRaw := strings.TrimSpace(r.URL.Query().Get("after")); afterRaw != "" {
		parsed, err := strconv.ParseInt(afterRaw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "after must be a non-negative sequence number")
			return
		}
		after = parsed
	}

	limit := 100
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed <= 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}

	events, err := h.svc.ListEvents(r.Context(), after, limit)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func pathParts(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": requestIDFromRequest(r),
		}).Error("request failed")
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func mapError(err error) (int, string, string) {
	var validationErr *store.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, "invalid_request", validationErr.Error()
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request", "invalid request"
	case errors.Is(err, store.ErrAlreadyQueued):
		return http.StatusConflict, "already_queued", "user is already waiting in a queue"
	case errors.Is(err, store.ErrQueueNotFound):
		return http.StatusNotFound, "queue_not_found", "queue not found"
	case errors.Is(err, store.ErrLocationNotFound):
		return http.StatusNotFound, "location_not_found", "location not found"
	case errors.Is(err, store.ErrStaffNotFound):
		return http.StatusNotFound, "staff_not_found", "staff not found"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "person state does not allow this action"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout", "request timed out"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
