package conversation

import (
	"regexp"
	"strings"
)

// Action names the step the assistant takes for a turn. Values are
// serialized verbatim in responses.
type Action string

const (
	ActionAskDocument          Action = "AskDocument"
	ActionVerifyMembership     Action = "VerifyMembership"
	ActionAskReason            Action = "AskReason"
	ActionAskAddress           Action = "AskAddress"
	ActionAskPhone             Action = "AskPhone"
	ActionListDoctors          Action = "ListDoctors"
	ActionSelectDoctor         Action = "SelectDoctor"
	ActionListNeighborhoods    Action = "ListNeighborhoods"
	ActionSelectNeighborhood   Action = "SelectNeighborhood"
	ActionConfirmAndCreate     Action = "ConfirmAndCreate"
	ActionCreateVisit          Action = "CreateVisit"
	ActionAwaitingConfirmation Action = "AwaitingConfirmation"
	ActionCancel               Action = "Cancel"
	ActionGeneralInfo          Action = "GeneralInfo"
	ActionFallback             Action = "Fallback"
)

// Intent is an optional classification hint from a language model.
type Intent string

const (
	IntentUnknown Intent = ""
	IntentVisit   Intent = "visit"
	IntentInfo    Intent = "info"
	IntentCancel  Intent = "cancel"
	IntentOther   Intent = "other"
)

var (
	cancelPattern      = regexp.MustCompile(`\b(cancel(?:a|ar|o|e|en|alo|ala|ado|ada)?|anul(?:a|ar|alo|ala)|desisto|olvidal[oa]|ya no (?:quiero|necesito|deseo)|no quiero (?:la|una|ninguna) (?:visita|cita)|stop)\b`)
	affirmativeLead    = regexp.MustCompile(`^(si|claro|dale|ok|okay|listo|de acuerdo|yes|correcto|perfecto|adelante|hagale|hagalo|por supuesto|exacto)\b`)
	confirmWord        = regexp.MustCompile(`\bconfirm\w*\b`)
	negativeLead       = regexp.MustCompile(`^no\b`)
	visitKeyword       = regexp.MustCompile(`\b(visit\w*|medic[oa]s?|doctor\w*|cita\w*|domicili\w*|agend\w*|appointment\w*)\b`)
	leadingPunctuation = regexp.MustCompile(`^[^\pL\pN]+`)
)

// IsCancellation reports whether the caller asked to drop the request.
func IsCancellation(utterance string) bool {
	return cancelPattern.MatchString(fold(utterance))
}

// IsAffirmative reports whether the utterance confirms a pending summary:
// it opens with a yes-word ("sí", "claro", "ok"...) or contains a form of
// "confirm", and does not open with "no".
func IsAffirmative(utterance string) bool {
	folded := leadingPunctuation.ReplaceAllString(fold(utterance), "")
	if folded == "" || negativeLead.MatchString(folded) {
		return false
	}
	return affirmativeLead.MatchString(folded) || confirmWord.MatchString(folded)
}

// HasVisitKeyword reports whether the utterance is about booking a visit.
func HasVisitKeyword(utterance string) bool {
	return visitKeyword.MatchString(fold(utterance))
}

// ParseIntent maps classifier output, Spanish or English, to an Intent.
func ParseIntent(raw string) Intent {
	switch strings.Trim(fold(raw), " \"'.") {
	case "visita", "visit", "cita":
		return IntentVisit
	case "informacion", "info", "information":
		return IntentInfo
	case "cancelar", "cancel":
		return IntentCancel
	case "otro", "other":
		return IntentOther
	default:
		return IntentUnknown
	}
}
