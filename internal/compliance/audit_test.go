package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	patientID := 42

	tests := []struct {
		name  string
		event AuditEvent
	}{
		{
			name: "visit created",
			event: AuditEvent{
				EventType:  EventVisitCreated,
				SessionKey: "******4567",
				PatientID:  &patientID,
				VisitID:    "88",
			},
		},
		{
			name: "visit failed with missing fields",
			event: AuditEvent{
				EventType:     EventVisitFailed,
				SessionKey:    "******4567",
				MissingFields: []string{"phone", "neighborhoodId"},
			},
		},
		{
			name:  "cancelled",
			event: AuditEvent{EventType: EventCancelled, SessionKey: "*******"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO visit_audit_events").
				WillReturnResult(sqlmock.NewResult(1, 1))

			assert.NoError(t, service.LogEvent(context.Background(), tt.event))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogVisitCreated_MasksSessionKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	mock.ExpectExec("INSERT INTO visit_audit_events").
		WithArgs(sqlmock.AnyArg(), "intake.visit_created", "******4567", 42, "88", sqlmock.AnyArg(), []byte(`{}`), fixed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogVisitCreated(context.Background(), "1061234567", 42, "88")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogMembershipRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO visit_audit_events").
		WithArgs(sqlmock.AnyArg(), "intake.membership_rejected", "****5678", nil, nil, nil, []byte(`{"reason":"not_found"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewAuditService(db).LogMembershipRejected(context.Background(), "12345678", "not_found")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_HelpersUseEventTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	service := NewAuditService(db)
	ctx := context.Background()

	for _, eventType := range []AuditEventType{EventMembershipVerified, EventVisitFailed, EventCancelled} {
		mock.ExpectExec("INSERT INTO visit_audit_events").
			WithArgs(sqlmock.AnyArg(), string(eventType), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	require.NoError(t, service.LogMembershipVerified(ctx, "1061234567", 42))
	require.NoError(t, service.LogVisitFailed(ctx, "1061234567", []string{"phone"}, "incomplete"))
	require.NoError(t, service.LogCancelled(ctx, "1061234567"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogEvent_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO visit_audit_events").WillReturnError(errors.New("connection reset"))

	err = NewAuditService(db).LogCancelled(context.Background(), "1061234567")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "compliance: failed to log audit event")
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "session_key", "patient_id", "visit_id",
		"missing_fields", "details", "created_at",
	}).
		AddRow("evt-1", "intake.visit_failed", "******4567", 42, nil, "{phone,neighborhoodId}", []byte(`{"reason":"incomplete"}`), created).
		AddRow("evt-2", "intake.visit_failed", "******4567", 42, "88", "{}", []byte(`{}`), created.Add(-time.Minute))

	mock.ExpectQuery(`FROM visit_audit_events WHERE 1=1 AND event_type = \$1 AND patient_id = \$2 ORDER BY created_at DESC LIMIT 10`).
		WithArgs("intake.visit_failed", 42).
		WillReturnRows(rows)

	patientID := 42
	events, err := NewAuditService(db).QueryEvents(context.Background(), AuditFilter{
		EventType: EventVisitFailed,
		PatientID: &patientID,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, EventVisitFailed, events[0].EventType)
	assert.Equal(t, []string{"phone", "neighborhoodId"}, events[0].MissingFields)
	require.NotNil(t, events[0].PatientID)
	assert.Equal(t, 42, *events[0].PatientID)
	assert.Empty(t, events[0].VisitID)
	assert.JSONEq(t, `{"reason":"incomplete"}`, string(events[0].Details))
	assert.Equal(t, "88", events[1].VisitID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_QueryEvents_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM visit_audit_events").WillReturnError(errors.New("timeout"))

	_, err = NewAuditService(db).QueryEvents(context.Background(), AuditFilter{})
	assert.Error(t, err)
}
