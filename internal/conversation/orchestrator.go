package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/previmed/visit-assistant/internal/directory"
	"github.com/previmed/visit-assistant/internal/notify"
	"github.com/previmed/visit-assistant/pkg/logging"
)

// Directory is the subset of the backend the orchestrator needs.
type Directory interface {
	VerifyMembership(ctx context.Context, document string) (directory.Membership, error)
	AvailableDoctors(ctx context.Context) ([]directory.Doctor, error)
	ActiveNeighborhoods(ctx context.Context) ([]directory.Neighborhood, error)
	CreateVisit(ctx context.Context, req directory.VisitRequest) (directory.VisitReceipt, error)
}

// AuditLogger records intake milestones. Failures are logged and never
// change the reply.
type AuditLogger interface {
	LogMembershipVerified(ctx context.Context, sessionKey string, patientID int) error
	LogMembershipRejected(ctx context.Context, sessionKey, reason string) error
	LogVisitCreated(ctx context.Context, sessionKey string, patientID int, visitID string) error
	LogVisitFailed(ctx context.Context, sessionKey string, missing []string, cause string) error
	LogCancelled(ctx context.Context, sessionKey string) error
}

// VisitNotifier tells the dispatch desk about a new visit.
type VisitNotifier interface {
	NotifyVisitCreated(ctx context.Context, notice notify.VisitNotice) error
}

// Session close reasons.
const (
	CloseReasonCreated   = "created"
	CloseReasonCancelled = "cancelled"
)

// Outcome is the result of executing one action.
type Outcome struct {
	OK      bool
	Action  Action
	Message string
	Detail  map[string]any
	// Closed is non-empty when the session must be removed.
	Closed string
}

// maxChain bounds how many actions one turn may run after a successful
// membership check.
const maxChain = 3

// Orchestrator executes resolved actions against a session.
type Orchestrator struct {
	directory Directory
	extractor *Extractor
	responder Responder
	audit     AuditLogger
	notifier  VisitNotifier
	logger    *logging.Logger
	now       func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithResponder(r Responder) OrchestratorOption {
	return func(o *Orchestrator) { o.responder = r }
}

func WithAuditLogger(a AuditLogger) OrchestratorOption {
	return func(o *Orchestrator) { o.audit = a }
}

func WithVisitNotifier(n VisitNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithOrchestratorLogger(l *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithOrchestratorClock overrides the visit timestamp source.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the directory and extractor. A nil extractor gets
// the default one.
func NewOrchestrator(dir Directory, extractor *Extractor, opts ...OrchestratorOption) *Orchestrator {
	if dir == nil {
		panic("conversation: directory cannot be nil")
	}
	if extractor == nil {
		extractor = NewExtractor()
	}
	o := &Orchestrator{
		directory: dir,
		extractor: extractor,
		logger:    logging.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs action for the session and mutates its slots in place.
func (o *Orchestrator) Execute(ctx context.Context, sess *Session, action Action, utterance string) Outcome {
	return o.execute(ctx, sess, action, utterance, 0)
}

func (o *Orchestrator) execute(ctx context.Context, sess *Session, action Action, utterance string, depth int) Outcome {
	slots := &sess.Slots
	switch action {
	case ActionCancel:
		o.auditCancelled(ctx, sess.Key)
		return Outcome{OK: true, Action: action, Message: replyCancelled, Closed: CloseReasonCancelled}

	case ActionVerifyMembership:
		return o.verifyMembership(ctx, sess, utterance, depth)

	case ActionAskDocument, ActionAskReason, ActionAskAddress, ActionAskPhone:
		return Outcome{OK: true, Action: action, Message: promptFor(action, *slots)}

	case ActionListDoctors:
		return o.listDoctors(ctx, slots)

	case ActionSelectDoctor:
		names := slots.DoctorNames()
		return Outcome{Action: action, Message: replyDoctorMismatch(names), Detail: map[string]any{"doctors": names}}

	case ActionListNeighborhoods:
		return o.listNeighborhoods(ctx, slots)

	case ActionSelectNeighborhood:
		names := slots.NeighborhoodNames()
		return Outcome{Action: action, Message: replyNeighborhoodMismatch(names), Detail: map[string]any{"neighborhoods": names}}

	case ActionConfirmAndCreate:
		slots.ConfirmationRequested = true
		return Outcome{OK: true, Action: action, Message: replySummary(*slots), Detail: map[string]any{"summary": summaryDetail(*slots)}}

	case ActionCreateVisit:
		return o.createVisit(ctx, sess)

	case ActionAwaitingConfirmation:
		return Outcome{OK: true, Action: action, Message: replyAwaitingConfirmation + " " + replySummary(*slots)}

	case ActionGeneralInfo, ActionFallback:
		return o.respond(ctx, sess, action, utterance)

	default:
		o.logger.Warn("unknown action", "action", string(action))
		return o.respond(ctx, sess, ActionFallback, utterance)
	}
}

func (o *Orchestrator) verifyMembership(ctx context.Context, sess *Session, utterance string, depth int) Outcome {
	slots := &sess.Slots
	membership, err := o.directory.VerifyMembership(ctx, slots.Document)
	if err != nil {
		if errors.Is(err, directory.ErrMembershipNotFound) {
			o.logger.Info("membership not found", "document", logging.MaskDigits(slots.Document))
			o.auditRejected(ctx, sess.Key, "not_found")
			slots.RejectedDocument = slots.Document
			slots.Document = ""
			return Outcome{Action: ActionVerifyMembership, Message: replyMembershipNotFound, Detail: map[string]any{"reason": "not_found"}}
		}
		o.logger.Warn("membership lookup failed", "document", logging.MaskDigits(slots.Document), "error", err)
		return Outcome{Action: ActionVerifyMembership, Message: replyMembershipRetry, Detail: map[string]any{"reason": "unavailable"}}
	}

	slots.BindPatient(membership)
	o.logger.Info("membership verified", "document", logging.MaskDigits(slots.Document), "patient_id", membership.PatientID)
	o.auditVerified(ctx, sess.Key, membership.PatientID)

	// Details given with the document are picked up now, with the document
	// itself masked so its digits do not read as a phone number.
	if rest := WithoutDocument(utterance); rest != "" {
		o.extractor.Enrich(slots, rest, "")
	}

	next := Resolve(*slots, utterance, IntentVisit)
	detail := map[string]any{"membershipVerified": true, "patientId": membership.PatientID}
	if prompt := promptFor(next, *slots); prompt != "" {
		return Outcome{OK: true, Action: next, Message: replyMembershipVerified + " " + prompt, Detail: detail}
	}
	if depth >= maxChain || next.sideEffecting() || next == ActionVerifyMembership || next == ActionCancel {
		return Outcome{OK: true, Action: ActionVerifyMembership, Message: replyMembershipVerified, Detail: detail}
	}

	chained := o.execute(ctx, sess, next, utterance, depth+1)
	chained.Message = strings.TrimSpace(replyMembershipVerified + " " + chained.Message)
	if chained.Detail == nil {
		chained.Detail = map[string]any{}
	}
	for k, v := range detail {
		chained.Detail[k] = v
	}
	return chained
}

func (o *Orchestrator) listDoctors(ctx context.Context, slots *SlotSet) Outcome {
	doctors, err := o.directory.AvailableDoctors(ctx)
	if err != nil {
		o.logger.Warn("doctor listing failed", "error", err)
		return Outcome{Action: ActionListDoctors, Message: replyDoctorsRetry, Detail: map[string]any{"reason": "unavailable"}}
	}
	if len(doctors) == 0 {
		return Outcome{Action: ActionListDoctors, Message: replyNoDoctors, Detail: map[string]any{"reason": "none_available"}}
	}
	slots.AvailableDoctors = doctors
	names := slots.DoctorNames()
	return Outcome{OK: true, Action: ActionListDoctors, Message: replyDoctorList(names), Detail: map[string]any{"doctors": names}}
}

func (o *Orchestrator) listNeighborhoods(ctx context.Context, slots *SlotSet) Outcome {
	neighborhoods, err := o.directory.ActiveNeighborhoods(ctx)
	if err != nil {
		o.logger.Warn("neighborhood listing failed", "error", err)
		return Outcome{Action: ActionListNeighborhoods, Message: replyNeighborhoodsRetry, Detail: map[string]any{"reason": "unavailable"}}
	}
	if len(neighborhoods) == 0 {
		return Outcome{Action: ActionListNeighborhoods, Message: replyNoNeighborhoods, Detail: map[string]any{"reason": "none_available"}}
	}
	slots.AvailableNeighborhoods = neighborhoods
	names := slots.NeighborhoodNames()
	return Outcome{OK: true, Action: ActionListNeighborhoods, Message: replyNeighborhoodList(names), Detail: map[string]any{"neighborhoods": names}}
}

func (o *Orchestrator) createVisit(ctx context.Context, sess *Session) Outcome {
	slots := &sess.Slots
	if missing := slots.MissingFields(); len(missing) > 0 {
		o.auditFailed(ctx, sess.Key, missing, "incomplete")
		return Outcome{Action: ActionCreateVisit, Message: replyVisitIncomplete, Detail: map[string]any{"missing": missing}}
	}

	scheduledAt := o.now().UTC()
	receipt, err := o.directory.CreateVisit(ctx, directory.VisitRequest{
		PatientID:      *slots.PatientID,
		DoctorID:       slots.Doctor.ID,
		NeighborhoodID: slots.Neighborhood.ID,
		Reason:         slots.VisitReason,
		Address:        slots.Address,
		Phone:          slots.Phone,
		ScheduledAt:    scheduledAt,
	})
	if err != nil {
		o.logger.Error("visit creation failed", "patient_id", *slots.PatientID, "error", err)
		o.auditFailed(ctx, sess.Key, nil, err.Error())
		return Outcome{Action: ActionCreateVisit, Message: replyVisitFailed, Detail: map[string]any{"reason": "create_failed"}}
	}

	o.logger.Info("visit created", "visit_id", receipt.VisitID, "patient_id", *slots.PatientID)
	o.auditCreated(ctx, sess.Key, *slots.PatientID, receipt.VisitID)
	o.notifyCreated(ctx, *slots, receipt.VisitID, scheduledAt)
	return Outcome{
		OK:      true,
		Action:  ActionCreateVisit,
		Message: replyVisitCreated,
		Detail:  map[string]any{"visitId": receipt.VisitID},
		Closed:  CloseReasonCreated,
	}
}

func (o *Orchestrator) respond(ctx context.Context, sess *Session, action Action, utterance string) Outcome {
	fallback := action == ActionFallback
	if o.responder == nil {
		return Outcome{OK: true, Action: action, Message: cannedInfoReply(fallback)}
	}
	answer, err := o.responder.Respond(ctx, ResponderRequest{
		Utterance: utterance,
		History:   sess.History,
		Fallback:  fallback,
	})
	if err != nil {
		o.logger.Warn("general responder failed", "action", string(action), "error", err)
		return Outcome{OK: true, Action: action, Message: cannedInfoReply(fallback)}
	}
	return Outcome{OK: true, Action: action, Message: answer}
}

func (o *Orchestrator) notifyCreated(ctx context.Context, s SlotSet, visitID string, at time.Time) {
	if o.notifier == nil {
		return
	}
	notice := notify.VisitNotice{
		VisitID:        visitID,
		PatientID:      *s.PatientID,
		PatientName:    s.CallerName,
		ContractNumber: s.ContractNumber,
		DoctorName:     s.Doctor.Name,
		Neighborhood:   s.Neighborhood.Name,
		Address:        s.Address,
		Phone:          s.Phone,
		Reason:         s.VisitReason,
		ScheduledAt:    at,
	}
	if err := o.notifier.NotifyVisitCreated(ctx, notice); err != nil {
		o.logger.Warn("visit notification failed", "visit_id", visitID, "error", err)
	}
}

func summaryDetail(s SlotSet) map[string]any {
	out := map[string]any{
		"visitReason": s.VisitReason,
		"address":     s.Address,
		"phone":       s.Phone,
	}
	if s.Doctor != nil {
		out["doctor"] = s.Doctor.Name
	}
	if s.Neighborhood != nil {
		out["neighborhood"] = s.Neighborhood.Name
	}
	return out
}

func (o *Orchestrator) auditVerified(ctx context.Context, key string, patientID int) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogMembershipVerified(ctx, key, patientID); err != nil {
		o.logger.Warn("audit write failed", "event", "membership_verified", "error", err)
	}
}

func (o *Orchestrator) auditRejected(ctx context.Context, key, reason string) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogMembershipRejected(ctx, key, reason); err != nil {
		o.logger.Warn("audit write failed", "event", "membership_rejected", "error", err)
	}
}

func (o *Orchestrator) auditCreated(ctx context.Context, key string, patientID int, visitID string) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogVisitCreated(ctx, key, patientID, visitID); err != nil {
		o.logger.Warn("audit write failed", "event", "visit_created", "error", err)
	}
}

func (o *Orchestrator) auditFailed(ctx context.Context, key string, missing []string, cause string) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogVisitFailed(ctx, key, missing, cause); err != nil {
		o.logger.Warn("audit write failed", "event", "visit_failed", "error", err)
	}
}

func (o *Orchestrator) auditCancelled(ctx context.Context, key string) {
	if o.audit == nil {
		return
	}
	if err := o.audit.LogCancelled(ctx, key); err != nil {
		o.logger.Warn("audit write failed", "event", "cancelled", "error", err)
	}
}
