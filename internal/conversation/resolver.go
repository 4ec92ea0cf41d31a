package conversation

import "strings"

// Resolve picks the next action from the current slots and utterance. It is
// pure: the same inputs always give the same action. The first matching
// rule wins:
//
//	cancellation, off-flow chatter, document, membership, reason, address,
//	phone, doctor, neighborhood, summary, confirmation, fallthrough.
//
// The hint only decides between GeneralInfo and Fallback.
func Resolve(slots SlotSet, utterance string, hint Intent) Action {
	if IsCancellation(utterance) {
		return ActionCancel
	}
	if !visitEngaged(slots, utterance, hint) {
		return infoOrFallback(hint)
	}
	if strings.TrimSpace(slots.Document) == "" {
		return ActionAskDocument
	}
	if slots.PatientID == nil {
		return ActionVerifyMembership
	}
	if strings.TrimSpace(slots.VisitReason) == "" {
		return ActionAskReason
	}
	if strings.TrimSpace(slots.Address) == "" {
		return ActionAskAddress
	}
	if strings.TrimSpace(slots.Phone) == "" {
		return ActionAskPhone
	}
	if slots.Doctor == nil {
		if len(slots.AvailableDoctors) == 0 {
			return ActionListDoctors
		}
		return ActionSelectDoctor
	}
	if slots.Neighborhood == nil {
		if len(slots.AvailableNeighborhoods) == 0 {
			return ActionListNeighborhoods
		}
		return ActionSelectNeighborhood
	}
	if !slots.ConfirmationRequested {
		return ActionConfirmAndCreate
	}
	if IsAffirmative(utterance) {
		return ActionCreateVisit
	}
	if HasVisitKeyword(utterance) {
		return ActionAwaitingConfirmation
	}
	return infoOrFallback(hint)
}

// visitEngaged is true once the caller has asked for a visit in this
// session, or does so now.
func visitEngaged(slots SlotSet, utterance string, hint Intent) bool {
	return slots.VisitRequested || slots.PatientID != nil || hint == IntentVisit || HasVisitKeyword(utterance)
}

func infoOrFallback(hint Intent) Action {
	if hint == IntentOther {
		return ActionFallback
	}
	return ActionGeneralInfo
}

// sideEffecting reports whether executing the action writes to the backend.
func (a Action) sideEffecting() bool {
	return a == ActionCreateVisit
}
