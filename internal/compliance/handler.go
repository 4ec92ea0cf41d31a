package compliance

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/previmed/visit-assistant/pkg/logging"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

// EventQuerier reads audit events.
type EventQuerier interface {
	QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// Handler exposes the audit trail to administrators.
type Handler struct {
	events EventQuerier
	logger *logging.Logger
}

func NewHandler(events EventQuerier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{events: events, logger: logger}
}

// ListEvents handles GET /admin/audit/events. Supported query parameters:
// event_type, patient_id, since and until (RFC3339), limit, offset.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		http.Error(w, "Failed to query audit events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []AuditEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"events": events}); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

type filterError string

func (e filterError) Error() string { return string(e) }

func parseFilter(r *http.Request) (AuditFilter, error) {
	q := r.URL.Query()
	filter := AuditFilter{
		EventType: AuditEventType(strings.TrimSpace(q.Get("event_type"))),
		Limit:     defaultEventLimit,
	}

	if raw := q.Get("patient_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return filter, filterError("patient_id must be an integer")
		}
		filter.PatientID = &id
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, filterError("since must be RFC3339")
		}
		filter.StartTime = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, filterError("until must be RFC3339")
		}
		filter.EndTime = t
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, filterError("limit must be a positive integer")
		}
		if limit > maxEventLimit {
			limit = maxEventLimit
		}
		filter.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, filterError("offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}
