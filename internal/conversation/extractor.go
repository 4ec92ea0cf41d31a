package conversation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/previmed/visit-assistant/internal/directory"
)

// PartialSlots is what a single utterance revealed on its own.
type PartialSlots struct {
	CallerName  string
	Document    string
	Phone       string
	Address     string
	VisitReason string
}

var (
	// mobilePattern is a Colombian mobile: 3xx xxx xxxx, optional +57.
	mobilePattern  = regexp.MustCompile(`(?:^|[^\d])(?:\+?57[\s.-]?)?(3\d{2})[\s.-]?(\d{3})[\s.-]?(\d{4})(?:[^\d]|$)`)
	prefixedLocal  = regexp.MustCompile(`\+57[\s.-]?(\d{7,10})(?:[^\d]|$)`)
	localDigitRun  = regexp.MustCompile(`(?:^|[^\d])(\d{7,10})(?:[^\d]|$)`)
	anyDigit       = regexp.MustCompile(`\d`)
	addressKeyword = regexp.MustCompile(`\b(calle|cll|cl|carrera|cra|kra|kr|cr|avenida|av|diagonal|dg|transversal|tv|manzana|mz|apartamento|apto|edificio|torre|bloque|vereda|conjunto|urbanizacion|street|st|avenue|ave|road|rd)\b`)
	symptomWords   = regexp.MustCompile(`\b(dolor\w*|duele\w*|duelen|fiebre|calentura|tos|gripa|gripe|resfriad\w*|mareo\w*|vomit\w*|diarrea|nausea\w*|presion|tension|asma|ahog\w*|respir\w*|herida\w*|golpe\w*|caida|fractura\w*|infeccion\w*|alergi\w*|sangr\w*|enferm\w*|malestar|cansancio|debilidad|convulsion\w*|glucosa|azucar|diabet\w*|hipertens\w*|curacion|inyeccion|sintoma\w*|quemadura\w*|migrana|colico\w*|estomago|pecho|garganta|oido\w*|pain|fever|cough|headache|sick|injur\w*|it hurts)\b`)
	consultRequest = regexp.MustCompile(`\b(?:(?:necesito|quiero|requiero|solicito)\s+(?:una?\s+)?(?:consulta|valoracion|revision|chequeo|control|atencion medica)|que me (?:revisen|valoren|examinen|atiendan|vean)|checkup|check-up|consultation)\b`)
	nameCue        = regexp.MustCompile(`(?i)\b(?:me llamo|mi nombre es|my name is)\s+([^,.;:!?\n\d]+)`)
	documentCue    = regexp.MustCompile(`\b(?:cedula|documento|identificacion|cc)\b\D{0,20}(\d[\d.\s]{3,18}\d)`)
	documentOnly   = regexp.MustCompile(`^[\d.\s-]+$`)
	documentPhrase = regexp.MustCompile(`(?i)(?:\bmi\s+)?\b(?:c[eé]dula|documento|identificaci[oó]n|cc)\b\D{0,20}\d[\d.\s]{3,18}\d`)
)

// DetectPhone returns a phone number as bare digits without country code.
// Colombian mobiles win over generic 7-10 digit runs.
func DetectPhone(utterance string) string {
	if m := mobilePattern.FindStringSubmatch(utterance); m != nil {
		return m[1] + m[2] + m[3]
	}
	if m := prefixedLocal.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	if m := localDigitRun.FindStringSubmatch(utterance); m != nil {
		return m[1]
	}
	return ""
}

// DetectAddress accepts the whole utterance when it names a street type and
// carries at least one digit.
func DetectAddress(utterance string) string {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" || !anyDigit.MatchString(trimmed) {
		return ""
	}
	if !addressKeyword.MatchString(fold(trimmed)) {
		return ""
	}
	return trimmed
}

// DetectVisitReason accepts the whole utterance when it mentions a symptom
// or asks for a consultation.
func DetectVisitReason(utterance string) string {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return ""
	}
	folded := fold(trimmed)
	if symptomWords.MatchString(folded) || consultRequest.MatchString(folded) {
		return trimmed
	}
	return ""
}

// DetectName keeps letters and spaces only and accepts the result when it
// has at least two words and at most 60 characters.
func DetectName(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, text)
	cleaned = strings.TrimSpace(spaceRun.ReplaceAllString(cleaned, " "))
	if len(strings.Fields(cleaned)) < 2 || len([]rune(cleaned)) > 60 {
		return ""
	}
	return cleaned
}

// detectIntroducedName only looks for a name after an explicit
// self-introduction, otherwise every two-word sentence would be a name.
func detectIntroducedName(utterance string) string {
	m := nameCue.FindStringSubmatch(utterance)
	if m == nil {
		return ""
	}
	words := strings.Fields(m[1])
	for i, w := range words {
		if _, stop := nameStopWords[fold(w)]; stop {
			words = words[:i]
			break
		}
	}
	return DetectName(strings.Join(words, " "))
}

// nameStopWords end a self-introduction ("me llamo Ana Ruiz y necesito...").
var nameStopWords = map[string]struct{}{
	"y": {}, "and": {}, "con": {}, "necesito": {}, "quiero": {}, "tengo": {},
	"para": {}, "porque": {}, "vivo": {}, "soy": {}, "mi": {},
}

// DetectDocument finds an identity document number: either after a cue
// such as "cédula" or as the only content of the utterance.
func DetectDocument(utterance string) string {
	folded := fold(utterance)
	candidate := ""
	if m := documentCue.FindStringSubmatch(folded); m != nil {
		candidate = m[1]
	} else if documentOnly.MatchString(folded) {
		candidate = folded
	}
	digits := onlyDigits(candidate)
	if len(digits) < 5 || len(digits) > 12 {
		return ""
	}
	return digits
}

// WithoutDocument removes the document mention from an utterance so the
// rest can be scanned without its digits reading as a phone number. An
// utterance that is only a document yields "".
func WithoutDocument(utterance string) string {
	if DetectDocument(utterance) == "" {
		return utterance
	}
	if documentOnly.MatchString(fold(utterance)) {
		return ""
	}
	rest := documentPhrase.ReplaceAllString(utterance, " ")
	return strings.Trim(spaceRun.ReplaceAllString(rest, " "), " ,.;:")
}

type detector struct {
	name   string
	detect func(string) string
	assign func(*PartialSlots, string)
}

// detectors run in this order; each fills one field of PartialSlots.
var detectors = []detector{
	{"phone", DetectPhone, func(p *PartialSlots, v string) { p.Phone = v }},
	{"address", DetectAddress, func(p *PartialSlots, v string) { p.Address = v }},
	{"visit_reason", DetectVisitReason, func(p *PartialSlots, v string) { p.VisitReason = v }},
	{"name", detectIntroducedName, func(p *PartialSlots, v string) { p.CallerName = v }},
	{"document", DetectDocument, func(p *PartialSlots, v string) { p.Document = v }},
}

// Extract runs every detector over the utterance. It never fails; fields
// with no match stay empty.
func Extract(utterance string) PartialSlots {
	var out PartialSlots
	for _, d := range detectors {
		if v := d.detect(utterance); v != "" {
			d.assign(&out, v)
		}
	}
	return out
}

// MatchDoctor returns the first cached doctor whose full or first name
// appears as whole words in the utterance.
func MatchDoctor(cache []directory.Doctor, utterance string) (directory.Doctor, bool) {
	folded := fold(utterance)
	for _, d := range cache {
		if containsWords(folded, d.FullName()) || containsWords(folded, d.FirstName) {
			return d, true
		}
	}
	return directory.Doctor{}, false
}

// MatchNeighborhood returns the first cached neighborhood named in the
// utterance.
func MatchNeighborhood(cache []directory.Neighborhood, utterance string) (directory.Neighborhood, bool) {
	folded := fold(utterance)
	for _, n := range cache {
		if containsWords(folded, n.Name) {
			return n, true
		}
	}
	return directory.Neighborhood{}, false
}

// containsWords is a folded substring match anchored on word boundaries, so
// "Ana" does not match "mañana".
func containsWords(foldedHaystack, needle string) bool {
	n := fold(needle)
	if n == "" {
		return false
	}
	re, err := regexp.Compile(`(?:^|[^\pL\pN])` + regexp.QuoteMeta(n) + `(?:[^\pL\pN]|$)`)
	if err != nil {
		return strings.Contains(foldedHaystack, n)
	}
	return re.MatchString(foldedHaystack)
}

// Extractor merges detector output into a session's slots.
type Extractor struct {
	acceptAnyAddress bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithAddressFallback makes the address step accept any non-empty text
// that no other detector claimed.
func WithAddressFallback(enabled bool) ExtractorOption {
	return func(e *Extractor) {
		e.acceptAnyAddress = enabled
	}
}

// NewExtractor builds an Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich fills currently empty slots from the utterance and reports which
// ones it filled. Filled slots are never overwritten. Visit details are
// only collected once the membership is verified.
func (e *Extractor) Enrich(slots *SlotSet, utterance, callerKey string) []string {
	var filled []string
	if HasVisitKeyword(utterance) {
		slots.VisitRequested = true
	}

	p := Extract(utterance)

	if slots.Document == "" && slots.PatientID == nil {
		if key := strings.TrimSpace(callerKey); key != "" && key != DefaultSessionKey && key != slots.RejectedDocument {
			slots.Document = key
			filled = append(filled, "document")
		} else if p.Document != "" {
			slots.Document = p.Document
			filled = append(filled, "document")
		}
	}
	if slots.CallerName == "" && p.CallerName != "" {
		slots.CallerName = p.CallerName
		filled = append(filled, "callerName")
	}
	if slots.PatientID == nil {
		return filled
	}

	atAddressStep := slots.VisitReason != "" && slots.Address == ""
	visitFilled := 0

	if slots.VisitReason == "" && p.VisitReason != "" {
		slots.VisitReason = p.VisitReason
		filled = append(filled, FieldVisitReason)
		visitFilled++
	}
	if slots.Address == "" && p.Address != "" {
		slots.Address = p.Address
		filled = append(filled, FieldAddress)
		visitFilled++
	}
	if slots.Phone == "" && p.Phone != "" {
		slots.Phone = p.Phone
		filled = append(filled, FieldPhone)
		visitFilled++
	}
	if slots.Doctor == nil && len(slots.AvailableDoctors) > 0 {
		if d, ok := MatchDoctor(slots.AvailableDoctors, utterance); ok {
			slots.BindDoctor(d)
			filled = append(filled, FieldDoctorID)
			visitFilled++
		}
	}
	if slots.Neighborhood == nil && len(slots.AvailableNeighborhoods) > 0 {
		if n, ok := MatchNeighborhood(slots.AvailableNeighborhoods, utterance); ok {
			slots.BindNeighborhood(n)
			filled = append(filled, FieldNeighborhoodID)
			visitFilled++
		}
	}

	if e.acceptAnyAddress && atAddressStep && visitFilled == 0 && !IsCancellation(utterance) {
		if text := strings.TrimSpace(utterance); text != "" {
			slots.Address = text
			filled = append(filled, FieldAddress)
		}
	}
	return filled
}
