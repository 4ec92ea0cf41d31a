package conversation

import (
	"strings"

	"github.com/previmed/visit-assistant/internal/directory"
)

// Required field names reported by MissingFields, in resolution order.
const (
	FieldPatientID      = "patientId"
	FieldVisitReason    = "visitReason"
	FieldAddress        = "address"
	FieldPhone          = "phone"
	FieldDoctorID       = "doctorId"
	FieldNeighborhoodID = "neighborhoodId"
)

// DoctorRef binds a doctor id and display name together.
type DoctorRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// NeighborhoodRef binds a neighborhood id and name together.
type NeighborhoodRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SlotSet is everything collected from one caller so far.
type SlotSet struct {
	CallerName     string           `json:"callerName,omitempty"`
	Document       string           `json:"document,omitempty"`
	Phone          string           `json:"phone,omitempty"`
	Address        string           `json:"address,omitempty"`
	VisitReason    string           `json:"visitReason,omitempty"`
	Doctor         *DoctorRef       `json:"doctor,omitempty"`
	Neighborhood   *NeighborhoodRef `json:"neighborhood,omitempty"`
	PatientID      *int             `json:"patientId,omitempty"`
	ContractNumber string           `json:"contractNumber,omitempty"`

	AvailableDoctors       []directory.Doctor       `json:"availableDoctors,omitempty"`
	AvailableNeighborhoods []directory.Neighborhood `json:"availableNeighborhoods,omitempty"`

	// RejectedDocument is the last document the directory did not know.
	// A caller key equal to it is no longer used to fill Document.
	RejectedDocument string `json:"rejectedDocument,omitempty"`

	// VisitRequested sticks once the caller asked for a visit.
	VisitRequested bool `json:"visitRequested,omitempty"`
	// ConfirmationRequested is set once the summary was shown.
	ConfirmationRequested bool `json:"confirmationRequested,omitempty"`
}

// MissingFields lists the required fields that are still empty.
func (s SlotSet) MissingFields() []string {
	var missing []string
	if s.PatientID == nil {
		missing = append(missing, FieldPatientID)
	}
	if strings.TrimSpace(s.VisitReason) == "" {
		missing = append(missing, FieldVisitReason)
	}
	if strings.TrimSpace(s.Address) == "" {
		missing = append(missing, FieldAddress)
	}
	if strings.TrimSpace(s.Phone) == "" {
		missing = append(missing, FieldPhone)
	}
	if s.Doctor == nil {
		missing = append(missing, FieldDoctorID)
	}
	if s.Neighborhood == nil {
		missing = append(missing, FieldNeighborhoodID)
	}
	return missing
}

// Complete reports whether a visit can be created from these slots.
func (s SlotSet) Complete() bool {
	return len(s.MissingFields()) == 0
}

// BindPatient records a verified membership.
func (s *SlotSet) BindPatient(m directory.Membership) {
	id := m.PatientID
	s.PatientID = &id
	s.ContractNumber = m.ContractNumber
	if s.CallerName == "" {
		s.CallerName = m.PatientName
	}
}

// BindDoctor records the selected doctor. The cached list stays in place
// so a later summary can still name the alternatives.
func (s *SlotSet) BindDoctor(d directory.Doctor) {
	s.Doctor = &DoctorRef{ID: d.ID, Name: d.FullName()}
}

// BindNeighborhood records the selected neighborhood.
func (s *SlotSet) BindNeighborhood(n directory.Neighborhood) {
	s.Neighborhood = &NeighborhoodRef{ID: n.ID, Name: n.Name}
}

// DoctorNames returns display names of the cached doctors, in order.
func (s SlotSet) DoctorNames() []string {
	names := make([]string, 0, len(s.AvailableDoctors))
	for _, d := range s.AvailableDoctors {
		names = append(names, d.FullName())
	}
	return names
}

// NeighborhoodNames returns names of the cached neighborhoods, in order.
func (s SlotSet) NeighborhoodNames() []string {
	names := make([]string, 0, len(s.AvailableNeighborhoods))
	for _, n := range s.AvailableNeighborhoods {
		names = append(names, n.Name)
	}
	return names
}

// clone returns a deep copy so stored sessions never alias caller memory.
func (s SlotSet) clone() SlotSet {
	out := s
	if s.Doctor != nil {
		d := *s.Doctor
		out.Doctor = &d
	}
	if s.Neighborhood != nil {
		n := *s.Neighborhood
		out.Neighborhood = &n
	}
	if s.PatientID != nil {
		id := *s.PatientID
		out.PatientID = &id
	}
	if s.AvailableDoctors != nil {
		out.AvailableDoctors = append([]directory.Doctor(nil), s.AvailableDoctors...)
	}
	if s.AvailableNeighborhoods != nil {
		out.AvailableNeighborhoods = append([]directory.Neighborhood(nil), s.AvailableNeighborhoods...)
	}
	return out
}
