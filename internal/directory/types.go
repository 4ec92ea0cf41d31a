package directory

import (
	"strings"
	"time"
)

// Membership is the result of an active-membership lookup.
type Membership struct {
	PatientID      int
	PatientName    string
	MembershipID   int
	ContractNumber string
}

// Doctor is a directory entry for a physician. Only doctors that are both
// active and available may be offered to callers.
type Doctor struct {
	ID        int    `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Active    bool   `json:"active"`
	Available bool   `json:"available"`
}

// FullName joins first and last name.
func (d Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

// Offerable reports whether the doctor can be proposed to a caller.
func (d Doctor) Offerable() bool {
	return d.Active && d.Available
}

// Neighborhood is a service-area entry.
type Neighborhood struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// VisitRequest carries everything needed to book a home visit.
type VisitRequest struct {
	PatientID      int
	DoctorID       int
	NeighborhoodID int
	Reason         string
	Address        string
	Phone          string
	ScheduledAt    time.Time
}

// VisitReceipt is returned when the backend accepted a visit.
type VisitReceipt struct {
	VisitID string
}

// wire shapes

type membershipResponse struct {
	OK       bool   `json:"ok"`
	Message  string `json:"mensaje"`
	Paciente *struct {
		ID     int    `json:"id_paciente"`
		Nombre string `json:"nombre"`
	} `json:"paciente"`
	Membresia *struct {
		ID             int    `json:"id_membresia"`
		NumeroContrato string `json:"numero_contrato"`
	} `json:"membresia"`
}

type doctorsResponse struct {
	Data []struct {
		ID             int  `json:"id_medico"`
		Estado         bool `json:"estado"`
		Disponibilidad bool `json:"disponibilidad"`
		Usuario        struct {
			Nombre   string `json:"nombre"`
			Apellido string `json:"apellido"`
		} `json:"usuario"`
	} `json:"data"`
}

type neighborhoodsResponse struct {
	Msj []struct {
		ID     int    `json:"idBarrio"`
		Nombre string `json:"nombreBarrio"`
		Estado bool   `json:"estado"`
	} `json:"msj"`
}

type createVisitPayload struct {
	FechaVisita string `json:"fecha_visita"`
	Descripcion string `json:"descripcion"`
	Direccion   string `json:"direccion"`
	Estado      bool   `json:"estado"`
	Telefono    string `json:"telefono"`
	PacienteID  int    `json:"paciente_id"`
	MedicoID    int    `json:"medico_id"`
	BarrioID    int    `json:"barrio_id"`
}
