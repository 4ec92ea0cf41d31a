package conversation

import (
	"fmt"
	"strings"
)

// Caller-facing messages. Callers speak Spanish.
const (
	replyAskDocument          = "¿Podrías darme tu número de cédula para verificar tu membresía activa?"
	replyMembershipNotFound   = "No encuentro una membresía activa con ese documento. Revisa el número y escríbelo de nuevo, por favor."
	replyMembershipRetry      = "No pude verificar tu membresía en este momento. Por favor, inténtalo de nuevo en unos minutos."
	replyMembershipVerified   = "Excelente."
	replyAskReason            = "¿Cuál es el motivo de tu visita?"
	replyAskAddress           = "¿En qué dirección deseas recibir la visita?"
	replyAskPhone             = "Por favor, indícame un número de contacto."
	replyNoDoctors            = "No hay médicos disponibles ahora. Escríbeme de nuevo en unos minutos y vuelvo a consultar."
	replyDoctorsRetry         = "No pude consultar los médicos disponibles en este momento. Por favor, inténtalo de nuevo."
	replyNoNeighborhoods      = "No hay barrios activos. Contacta soporte para registrar tu dirección."
	replyNeighborhoodsRetry   = "No pude consultar los barrios en este momento. Por favor, inténtalo de nuevo."
	replyVisitCreated         = "✅ ¡Listo! Tu visita fue creada exitosamente."
	replyVisitFailed          = "No pude crear la visita en este momento. Tus datos siguen guardados; responde \"sí\" para intentarlo de nuevo."
	replyVisitIncomplete      = "Aún me faltan algunos datos para crear la visita."
	replyAwaitingConfirmation = "¿Deseas que cree la visita con esos datos?"
	replyCancelled            = "Perfecto. He cancelado la solicitud."
	replyTemporaryFailure     = "Tuve un problema procesando tu mensaje. Por favor, inténtalo de nuevo."
	replyInfoCanned           = "Previmed ofrece atención médica domiciliaria en Popayán las 24 horas del día. Si lo deseas, puedo ayudarte a agendar una visita médica a domicilio."
	replyFallbackCanned       = "Estoy aquí para ayudarte con tus visitas médicas a domicilio. ¿Deseas agendar una visita?"
)

func replyDoctorList(names []string) string {
	return fmt.Sprintf("Estos son los médicos disponibles: %s. ¿Con cuál deseas agendar?", strings.Join(names, ", "))
}

func replyDoctorMismatch(names []string) string {
	example := "Samanta"
	if len(names) > 0 {
		example = strings.Fields(names[0])[0]
	}
	return fmt.Sprintf("No logré identificar el médico. Dime solo el nombre, por ejemplo: '%s'. Disponibles: %s.", example, strings.Join(names, ", "))
}

func replyNeighborhoodList(names []string) string {
	return fmt.Sprintf("¿En qué barrio te encuentras? Barrios disponibles: %s.", strings.Join(names, ", "))
}

func replyNeighborhoodMismatch(names []string) string {
	return fmt.Sprintf("No logré identificar ese barrio. Intenta escribir solo el nombre. Barrios disponibles: %s.", strings.Join(names, ", "))
}

// replySummary restates the collected visit for confirmation.
func replySummary(s SlotSet) string {
	doctor, neighborhood := "", ""
	if s.Doctor != nil {
		doctor = s.Doctor.Name
	}
	if s.Neighborhood != nil {
		neighborhood = s.Neighborhood.Name
	}
	return fmt.Sprintf("Confirmo: visita por '%s' en '%s', barrio %s, con %s. Teléfono de contacto: %s. ¿Confirmas?",
		s.VisitReason, s.Address, neighborhood, doctor, s.Phone)
}

func cannedInfoReply(fallback bool) string {
	if fallback {
		return replyFallbackCanned
	}
	return replyInfoCanned
}

// promptFor returns the question that collects the slot behind action.
func promptFor(action Action, s SlotSet) string {
	switch action {
	case ActionAskDocument:
		return replyAskDocument
	case ActionAskReason:
		return replyAskReason
	case ActionAskAddress:
		return replyAskAddress
	case ActionAskPhone:
		return replyAskPhone
	case ActionSelectDoctor:
		return replyDoctorMismatch(s.DoctorNames())
	case ActionSelectNeighborhood:
		return replyNeighborhoodMismatch(s.NeighborhoodNames())
	default:
		return ""
	}
}
