// Package compliance keeps an append-only trail of intake milestones.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/previmed/visit-assistant/pkg/logging"
)

// AuditEventType represents the type of intake event.
type AuditEventType string

const (
	EventMembershipVerified AuditEventType = "intake.membership_verified"
	EventMembershipRejected AuditEventType = "intake.membership_rejected"
	EventVisitCreated       AuditEventType = "intake.visit_created"
	EventVisitFailed        AuditEventType = "intake.visit_failed"
	EventCancelled          AuditEventType = "intake.cancelled"
)

// AuditEvent is one immutable audit record. SessionKey holds a masked
// document number, never the full one.
type AuditEvent struct {
	ID            string          `json:"id"`
	EventType     AuditEventType  `json:"event_type"`
	SessionKey    string          `json:"session_key"`
	PatientID     *int            `json:"patient_id,omitempty"`
	VisitID       string          `json:"visit_id,omitempty"`
	MissingFields []string        `json:"missing_fields,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	Reason string `json:"reason,omitempty"`
}

// AuditService writes and reads visit_audit_events.
type AuditService struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// LogEvent records an audit event, filling ID and CreatedAt when empty.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO visit_audit_events (
			id, event_type, session_key, patient_id, visit_id,
			missing_fields, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.SessionKey,
		nullInt(event.PatientID),
		nullString(event.VisitID),
		pq.Array(event.MissingFields),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

func (s *AuditService) LogMembershipVerified(ctx context.Context, sessionKey string, patientID int) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventMembershipVerified,
		SessionKey: logging.MaskDigits(sessionKey),
		PatientID:  &patientID,
	})
}

func (s *AuditService) LogMembershipRejected(ctx context.Context, sessionKey, reason string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventMembershipRejected,
		SessionKey: logging.MaskDigits(sessionKey),
		Details:    detailsJSON(reason),
	})
}

func (s *AuditService) LogVisitCreated(ctx context.Context, sessionKey string, patientID int, visitID string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventVisitCreated,
		SessionKey: logging.MaskDigits(sessionKey),
		PatientID:  &patientID,
		VisitID:    visitID,
	})
}

// LogVisitFailed records a rejected creation attempt: either fields were
// missing or the backend refused it.
func (s *AuditService) LogVisitFailed(ctx context.Context, sessionKey string, missing []string, cause string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:     EventVisitFailed,
		SessionKey:    logging.MaskDigits(sessionKey),
		MissingFields: missing,
		Details:       detailsJSON(cause),
	})
}

func (s *AuditService) LogCancelled(ctx context.Context, sessionKey string) error {
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventCancelled,
		SessionKey: logging.MaskDigits(sessionKey),
	})
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT id, event_type, session_key, patient_id, visit_id,
			   missing_fields, details, created_at
		FROM visit_audit_events
		WHERE 1=1
	`
	var args []any
	argIdx := 1

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, string(filter.EventType))
		argIdx++
	}
	if filter.PatientID != nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argIdx)
		args = append(args, *filter.PatientID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			e         AuditEvent
			eventType string
			patientID sql.NullInt64
			visitID   sql.NullString
			details   []byte
		)
		err := rows.Scan(
			&e.ID, &eventType, &e.SessionKey, &patientID, &visitID,
			pq.Array(&e.MissingFields), &details, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		if patientID.Valid {
			id := int(patientID.Int64)
			e.PatientID = &id
		}
		e.VisitID = visitID.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}
	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	EventType AuditEventType
	PatientID *int
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

func detailsJSON(reason string) json.RawMessage {
	if reason == "" {
		return nil
	}
	data, _ := json.Marshal(AuditDetails{Reason: reason})
	return data
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
