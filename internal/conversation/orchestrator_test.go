package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/previmed/visit-assistant/internal/directory"
	"github.com/previmed/visit-assistant/internal/notify"
)

type stubDirectory struct {
	mu sync.Mutex

	membership       directory.Membership
	membershipErr    error
	doctors          []directory.Doctor
	doctorsErr       error
	neighborhoods    []directory.Neighborhood
	neighborhoodsErr error
	receipt          directory.VisitReceipt
	createErr        error

	// accepted, when set, limits the documents the directory knows.
	accepted  map[string]bool
	documents []string

	verifyCalls int
	createCalls int
	lastVisit   directory.VisitRequest
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		membership:    directory.Membership{PatientID: 42, PatientName: "Ana Ruiz", MembershipID: 7, ContractNumber: "C-100"},
		doctors:       testDoctors(),
		neighborhoods: testNeighborhoods(),
		receipt:       directory.VisitReceipt{VisitID: "88"},
	}
}

func (s *stubDirectory) VerifyMembership(ctx context.Context, document string) (directory.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyCalls++
	s.documents = append(s.documents, document)
	if s.membershipErr != nil {
		return directory.Membership{}, s.membershipErr
	}
	if s.accepted != nil && !s.accepted[document] {
		return directory.Membership{}, directory.ErrMembershipNotFound
	}
	return s.membership, nil
}

func (s *stubDirectory) AvailableDoctors(ctx context.Context) ([]directory.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doctors, s.doctorsErr
}

func (s *stubDirectory) ActiveNeighborhoods(ctx context.Context) ([]directory.Neighborhood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neighborhoods, s.neighborhoodsErr
}

func (s *stubDirectory) CreateVisit(ctx context.Context, req directory.VisitRequest) (directory.VisitReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	s.lastVisit = req
	if s.createErr != nil {
		return directory.VisitReceipt{}, s.createErr
	}
	return s.receipt, nil
}

type stubAudit struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (s *stubAudit) record(event string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *stubAudit) LogMembershipVerified(ctx context.Context, key string, patientID int) error {
	return s.record(fmt.Sprintf("verified:%d", patientID))
}

func (s *stubAudit) LogMembershipRejected(ctx context.Context, key, reason string) error {
	return s.record("rejected:" + reason)
}

func (s *stubAudit) LogVisitCreated(ctx context.Context, key string, patientID int, visitID string) error {
	return s.record("created:" + visitID)
}

func (s *stubAudit) LogVisitFailed(ctx context.Context, key string, missing []string, cause string) error {
	return s.record("failed:" + strings.Join(missing, ","))
}

func (s *stubAudit) LogCancelled(ctx context.Context, key string) error {
	return s.record("cancelled")
}

type stubNotifier struct {
	notices []notify.VisitNotice
	err     error
}

func (s *stubNotifier) NotifyVisitCreated(ctx context.Context, notice notify.VisitNotice) error {
	s.notices = append(s.notices, notice)
	return s.err
}

type stubResponder struct {
	answer  string
	err     error
	lastReq ResponderRequest
}

func (s *stubResponder) Respond(ctx context.Context, req ResponderRequest) (string, error) {
	s.lastReq = req
	return s.answer, s.err
}

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestOrchestrator(dir *stubDirectory, opts ...OrchestratorOption) *Orchestrator {
	opts = append([]OrchestratorOption{WithOrchestratorClock(func() time.Time { return fixedNow })}, opts...)
	return NewOrchestrator(dir, NewExtractor(), opts...)
}

func sessionWith(slots SlotSet) *Session {
	sess := NewSession("1061234567", fixedNow)
	sess.Slots = slots
	return sess
}

func TestOrchestrator_VerifyMembership_Success(t *testing.T) {
	dir := newStubDirectory()
	audit := &stubAudit{}
	o := newTestOrchestrator(dir, WithAuditLogger(audit))
	sess := sessionWith(SlotSet{Document: "1061234567", VisitRequested: true})

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "1061234567")

	if !out.OK || out.Action != ActionAskReason {
		t.Fatalf("expected ok AskReason, got %#v", out)
	}
	if out.Message != "Excelente. ¿Cuál es el motivo de tu visita?" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if out.Detail["membershipVerified"] != true || out.Detail["patientId"] != 42 {
		t.Fatalf("unexpected detail %#v", out.Detail)
	}
	if sess.Slots.PatientID == nil || *sess.Slots.PatientID != 42 || sess.Slots.CallerName != "Ana Ruiz" || sess.Slots.ContractNumber != "C-100" {
		t.Fatalf("membership not bound: %#v", sess.Slots)
	}
	if sess.Slots.Phone != "" {
		t.Fatalf("document digits must not become a phone, got %q", sess.Slots.Phone)
	}
	if len(audit.events) != 1 || audit.events[0] != "verified:42" {
		t.Fatalf("unexpected audit events %v", audit.events)
	}
}

func TestOrchestrator_VerifyMembership_PicksUpDetailsFromSameTurn(t *testing.T) {
	o := newTestOrchestrator(newStubDirectory())
	sess := sessionWith(SlotSet{Document: "1061234567", VisitRequested: true})

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "quiero una visita, me duele la cabeza")

	if out.Action != ActionAskAddress || out.Message != "Excelente. ¿En qué dirección deseas recibir la visita?" {
		t.Fatalf("expected AskAddress after verification, got %#v", out)
	}
	if sess.Slots.VisitReason != "quiero una visita, me duele la cabeza" {
		t.Fatalf("expected reason captured, got %q", sess.Slots.VisitReason)
	}
}

func TestOrchestrator_VerifyMembership_KeepsDetailsBesideDocument(t *testing.T) {
	o := newTestOrchestrator(newStubDirectory())
	sess := sessionWith(SlotSet{Document: "1061234567", VisitRequested: true})

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "mi cédula es 1061234567, tengo fiebre")

	if !out.OK || out.Action != ActionAskAddress {
		t.Fatalf("expected AskAddress after verification, got %#v", out)
	}
	if sess.Slots.VisitReason != "tengo fiebre" {
		t.Fatalf("expected reason without the document, got %q", sess.Slots.VisitReason)
	}
	if sess.Slots.Phone != "" {
		t.Fatalf("document digits must not become a phone, got %q", sess.Slots.Phone)
	}
}

func TestOrchestrator_VerifyMembership_ChainsIntoDoctorListing(t *testing.T) {
	o := newTestOrchestrator(newStubDirectory())
	sess := sessionWith(SlotSet{Document: "1061234567", VisitRequested: true})

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "me duele la cabeza, Calle 5 # 3-20, 3001234567")

	if !out.OK || out.Action != ActionListDoctors {
		t.Fatalf("expected chained ListDoctors, got %#v", out)
	}
	if !strings.HasPrefix(out.Message, "Excelente.") || !strings.Contains(out.Message, "Samanta López") {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if out.Detail["membershipVerified"] != true {
		t.Fatalf("expected verification detail, got %#v", out.Detail)
	}
}

func TestOrchestrator_VerifyMembership_NotFound(t *testing.T) {
	dir := newStubDirectory()
	dir.membershipErr = directory.ErrMembershipNotFound
	audit := &stubAudit{}
	o := newTestOrchestrator(dir, WithAuditLogger(audit))
	sess := sessionWith(SlotSet{Document: "1061234567", VisitRequested: true})

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "1061234567")

	if out.OK || out.Action != ActionVerifyMembership || out.Message != replyMembershipNotFound {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if sess.Slots.Document != "" || sess.Slots.PatientID != nil {
		t.Fatalf("expected document cleared and no patient, got %#v", sess.Slots)
	}
	if sess.Slots.RejectedDocument != "1061234567" {
		t.Fatalf("expected rejected document recorded, got %q", sess.Slots.RejectedDocument)
	}
	if len(audit.events) != 1 || audit.events[0] != "rejected:not_found" {
		t.Fatalf("unexpected audit events %v", audit.events)
	}
}

func TestOrchestrator_VerifyMembership_Unavailable(t *testing.T) {
	dir := newStubDirectory()
	dir.membershipErr = fmt.Errorf("%w: context deadline exceeded", directory.ErrUnavailable)
	o := newTestOrchestrator(dir)
	before := SlotSet{Document: "1061234567", VisitRequested: true, CallerName: "Ana Ruiz"}
	sess := sessionWith(before)

	out := o.Execute(context.Background(), sess, ActionVerifyMembership, "1061234567")

	if out.OK || out.Action != ActionVerifyMembership || out.Message != replyMembershipRetry {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if sess.Slots.PatientID != nil || sess.Slots.Document != before.Document || sess.Slots.CallerName != before.CallerName {
		t.Fatalf("slots changed on failure: %#v", sess.Slots)
	}
}

func TestOrchestrator_Listings(t *testing.T) {
	t.Run("doctors cached in order", func(t *testing.T) {
		o := newTestOrchestrator(newStubDirectory())
		sess := sessionWith(verifiedSlots())
		out := o.Execute(context.Background(), sess, ActionListDoctors, "3001234567")
		if !out.OK || out.Message != "Estos son los médicos disponibles: Samanta López, Ana Ruiz. ¿Con cuál deseas agendar?" {
			t.Fatalf("unexpected outcome %#v", out)
		}
		if len(sess.Slots.AvailableDoctors) != 2 || sess.Slots.AvailableDoctors[0].ID != 1 {
			t.Fatalf("unexpected cache %#v", sess.Slots.AvailableDoctors)
		}
	})

	t.Run("no doctors", func(t *testing.T) {
		dir := newStubDirectory()
		dir.doctors = nil
		o := newTestOrchestrator(dir)
		sess := sessionWith(verifiedSlots())
		out := o.Execute(context.Background(), sess, ActionListDoctors, "")
		if out.OK || out.Message != replyNoDoctors || out.Detail["reason"] != "none_available" {
			t.Fatalf("unexpected outcome %#v", out)
		}
		if len(sess.Slots.AvailableDoctors) != 0 {
			t.Fatalf("expected empty cache")
		}
	})

	t.Run("doctors unavailable", func(t *testing.T) {
		dir := newStubDirectory()
		dir.doctorsErr = directory.ErrUnavailable
		out := newTestOrchestrator(dir).Execute(context.Background(), sessionWith(verifiedSlots()), ActionListDoctors, "")
		if out.OK || out.Message != replyDoctorsRetry {
			t.Fatalf("unexpected outcome %#v", out)
		}
	})

	t.Run("neighborhoods", func(t *testing.T) {
		o := newTestOrchestrator(newStubDirectory())
		sess := sessionWith(verifiedSlots())
		out := o.Execute(context.Background(), sess, ActionListNeighborhoods, "")
		if !out.OK || !strings.Contains(out.Message, "La Esmeralda, Modelo, Bolívar") {
			t.Fatalf("unexpected outcome %#v", out)
		}
		if len(sess.Slots.AvailableNeighborhoods) != 3 {
			t.Fatalf("unexpected cache %#v", sess.Slots.AvailableNeighborhoods)
		}
	})

	t.Run("no neighborhoods", func(t *testing.T) {
		dir := newStubDirectory()
		dir.neighborhoods = []directory.Neighborhood{}
		out := newTestOrchestrator(dir).Execute(context.Background(), sessionWith(verifiedSlots()), ActionListNeighborhoods, "")
		if out.OK || out.Message != replyNoNeighborhoods {
			t.Fatalf("unexpected outcome %#v", out)
		}
	})
}

func TestOrchestrator_SelectionMismatchRepromptsSameList(t *testing.T) {
	o := newTestOrchestrator(newStubDirectory())
	slots := verifiedSlots()
	slots.AvailableDoctors = testDoctors()
	sess := sessionWith(slots)

	out := o.Execute(context.Background(), sess, ActionSelectDoctor, "el que sea")

	if out.OK || !strings.Contains(out.Message, "Samanta López, Ana Ruiz") || !strings.Contains(out.Message, "'Samanta'") {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if len(sess.Slots.AvailableDoctors) != 2 || sess.Slots.Doctor != nil {
		t.Fatalf("cache or binding changed: %#v", sess.Slots)
	}

	slots.AvailableNeighborhoods = testNeighborhoods()
	out = o.Execute(context.Background(), sessionWith(slots), ActionSelectNeighborhood, "centro")
	if out.OK || !strings.Contains(out.Message, "La Esmeralda, Modelo, Bolívar") {
		t.Fatalf("unexpected outcome %#v", out)
	}
}

func TestOrchestrator_ConfirmAndCreate(t *testing.T) {
	o := newTestOrchestrator(newStubDirectory())
	sess := sessionWith(completeSlots())

	out := o.Execute(context.Background(), sess, ActionConfirmAndCreate, "Modelo")

	if !out.OK || !sess.Slots.ConfirmationRequested {
		t.Fatalf("expected confirmation requested, got %#v", out)
	}
	want := "Confirmo: visita por 'fiebre' en 'Calle 5 # 3-20', barrio Modelo, con Samanta López. Teléfono de contacto: 3001234567. ¿Confirmas?"
	if out.Message != want {
		t.Fatalf("unexpected summary %q", out.Message)
	}
}

func TestOrchestrator_CreateVisit_Success(t *testing.T) {
	dir := newStubDirectory()
	audit := &stubAudit{}
	notifier := &stubNotifier{err: errors.New("smtp down")}
	o := newTestOrchestrator(dir, WithAuditLogger(audit), WithVisitNotifier(notifier))
	slots := completeSlots()
	slots.ConfirmationRequested = true
	slots.CallerName = "Ana Ruiz"
	sess := sessionWith(slots)

	out := o.Execute(context.Background(), sess, ActionCreateVisit, "sí")

	if !out.OK || out.Closed != CloseReasonCreated || out.Message != replyVisitCreated || out.Detail["visitId"] != "88" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	want := directory.VisitRequest{
		PatientID:      42,
		DoctorID:       1,
		NeighborhoodID: 11,
		Reason:         "fiebre",
		Address:        "Calle 5 # 3-20",
		Phone:          "3001234567",
		ScheduledAt:    fixedNow,
	}
	if dir.lastVisit != want {
		t.Fatalf("unexpected visit request %#v", dir.lastVisit)
	}
	if len(notifier.notices) != 1 || notifier.notices[0].VisitID != "88" || notifier.notices[0].DoctorName != "Samanta López" {
		t.Fatalf("unexpected notices %#v", notifier.notices)
	}
	if len(audit.events) != 1 || audit.events[0] != "created:88" {
		t.Fatalf("unexpected audit events %v", audit.events)
	}
}

func TestOrchestrator_CreateVisit_FailurePreservesSlots(t *testing.T) {
	dir := newStubDirectory()
	dir.createErr = fmt.Errorf("%w: status 500", directory.ErrUnavailable)
	o := newTestOrchestrator(dir)
	slots := completeSlots()
	slots.ConfirmationRequested = true
	sess := sessionWith(slots)
	before := sess.Slots.clone()

	out := o.Execute(context.Background(), sess, ActionCreateVisit, "sí")

	if out.OK || out.Closed != "" || out.Message != replyVisitFailed {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if sess.Slots.PatientID == nil || !sess.Slots.ConfirmationRequested || sess.Slots.Doctor.ID != before.Doctor.ID {
		t.Fatalf("slots changed on failure: %#v", sess.Slots)
	}
}

func TestOrchestrator_CreateVisit_Incomplete(t *testing.T) {
	dir := newStubDirectory()
	audit := &stubAudit{}
	o := newTestOrchestrator(dir, WithAuditLogger(audit))
	slots := completeSlots()
	slots.Neighborhood = nil

	out := o.Execute(context.Background(), sessionWith(slots), ActionCreateVisit, "sí")

	missing, _ := out.Detail["missing"].([]string)
	if out.OK || len(missing) != 1 || missing[0] != FieldNeighborhoodID {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if dir.createCalls != 0 {
		t.Fatalf("backend must not be called, got %d calls", dir.createCalls)
	}
	if len(audit.events) != 1 || audit.events[0] != "failed:neighborhoodId" {
		t.Fatalf("unexpected audit events %v", audit.events)
	}
}

func TestOrchestrator_CancelAndAwaiting(t *testing.T) {
	audit := &stubAudit{err: errors.New("db down")}
	o := newTestOrchestrator(newStubDirectory(), WithAuditLogger(audit))

	out := o.Execute(context.Background(), sessionWith(completeSlots()), ActionCancel, "cancela")
	if !out.OK || out.Closed != CloseReasonCancelled || out.Message != replyCancelled {
		t.Fatalf("unexpected cancel outcome %#v", out)
	}

	out = o.Execute(context.Background(), sessionWith(completeSlots()), ActionAwaitingConfirmation, "¿y el médico?")
	if !out.OK || !strings.HasPrefix(out.Message, replyAwaitingConfirmation) || out.Closed != "" {
		t.Fatalf("unexpected awaiting outcome %#v", out)
	}
}

func TestOrchestrator_GeneralInfo(t *testing.T) {
	responder := &stubResponder{answer: "Atendemos 24/7."}
	o := newTestOrchestrator(newStubDirectory(), WithResponder(responder))
	sess := sessionWith(SlotSet{})
	sess.History = []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}

	out := o.Execute(context.Background(), sess, ActionGeneralInfo, "¿qué horario tienen?")
	if !out.OK || out.Message != "Atendemos 24/7." || responder.lastReq.Fallback || len(responder.lastReq.History) != 1 {
		t.Fatalf("unexpected outcome %#v (req %#v)", out, responder.lastReq)
	}

	responder.err = errors.New("down")
	out = o.Execute(context.Background(), sess, ActionFallback, "jaja")
	if !out.OK || out.Action != ActionFallback || out.Message != replyFallbackCanned || !responder.lastReq.Fallback {
		t.Fatalf("unexpected fallback outcome %#v", out)
	}
}
