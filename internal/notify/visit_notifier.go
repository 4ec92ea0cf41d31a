package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/previmed/visit-assistant/pkg/logging"
)

// VisitNotice describes a visit that was just booked.
type VisitNotice struct {
	VisitID        string
	PatientID      int
	PatientName    string
	ContractNumber string
	DoctorName     string
	Neighborhood   string
	Address        string
	Phone          string
	Reason         string
	ScheduledAt    time.Time
}

// VisitNotifier emails the dispatch desk about new visits.
type VisitNotifier struct {
	email    EmailSender
	to       string
	location *time.Location
	logger   *logging.Logger
}

// NewVisitNotifier returns nil when there is no sender or recipient, so
// callers can treat notifications as disabled.
func NewVisitNotifier(email EmailSender, to string, logger *logging.Logger) *VisitNotifier {
	to = strings.TrimSpace(to)
	if email == nil || to == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		loc = time.FixedZone("COT", -5*60*60)
	}
	return &VisitNotifier{email: email, to: to, location: loc, logger: logger}
}

// NotifyVisitCreated sends one email per visit.
func (n *VisitNotifier) NotifyVisitCreated(ctx context.Context, notice VisitNotice) error {
	if n == nil {
		return nil
	}
	msg := EmailMessage{
		To:      n.to,
		ToName:  "Despacho Previmed",
		Subject: fmt.Sprintf("Nueva visita domiciliaria #%s", notice.VisitID),
		Body:    n.body(notice),
	}
	if err := n.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: visit %s: %w", notice.VisitID, err)
	}
	n.logger.Info("visit notification sent", "visit_id", notice.VisitID, "patient_id", notice.PatientID)
	return nil
}

func (n *VisitNotifier) body(v VisitNotice) string {
	var b strings.Builder
	b.WriteString("Se registró una nueva visita médica a domicilio.\n\n")
	fmt.Fprintf(&b, "Visita: %s\n", v.VisitID)
	fmt.Fprintf(&b, "Fecha de solicitud: %s\n", v.ScheduledAt.In(n.location).Format("02/01/2006 15:04"))
	patient := v.PatientName
	if patient == "" {
		patient = fmt.Sprintf("Paciente %d", v.PatientID)
	}
	fmt.Fprintf(&b, "Paciente: %s\n", patient)
	if v.ContractNumber != "" {
		fmt.Fprintf(&b, "Contrato: %s\n", v.ContractNumber)
	}
	fmt.Fprintf(&b, "Médico: %s\n", v.DoctorName)
	fmt.Fprintf(&b, "Barrio: %s\n", v.Neighborhood)
	fmt.Fprintf(&b, "Dirección: %s\n", v.Address)
	fmt.Fprintf(&b, "Teléfono: %s\n", v.Phone)
	fmt.Fprintf(&b, "Motivo: %s\n", v.Reason)
	return b.String()
}
