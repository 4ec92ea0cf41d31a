package conversation

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/previmed/visit-assistant/pkg/logging"
)

//go:embed institution_context.md
var defaultInstitutionContext string

// LoadInstitutionContext reads the institutional text from path, or returns
// the built-in text when path is empty.
func LoadInstitutionContext(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return defaultInstitutionContext, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("conversation: failed to read institution context: %w", err)
	}
	return string(data), nil
}

// Responder answers turns that are not part of the booking flow.
type Responder interface {
	Respond(ctx context.Context, req ResponderRequest) (string, error)
}

// ResponderRequest is one off-flow turn.
type ResponderRequest struct {
	Utterance string
	History   []ChatMessage
	// Fallback is set for small talk rather than questions about the
	// service.
	Fallback bool
}

// InfoResponder answers with a language model grounded on the institution
// text. Without a model it returns a canned answer.
type InfoResponder struct {
	client  LLMClient
	context string
	timeout time.Duration
	logger  *logging.Logger
}

// NewInfoResponder creates a responder. client may be nil.
func NewInfoResponder(client LLMClient, institutionContext string, timeout time.Duration, logger *logging.Logger) *InfoResponder {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(institutionContext) == "" {
		institutionContext = defaultInstitutionContext
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &InfoResponder{client: client, context: institutionContext, timeout: timeout, logger: logger}
}

func (r *InfoResponder) Respond(ctx context.Context, req ResponderRequest) (string, error) {
	if r.client == nil {
		return cannedInfoReply(req.Fallback), nil
	}

	persona := "Eres el asistente de Previmed. Responde en español, de forma breve y clara, usando solo esta información:"
	if req.Fallback {
		persona = "Eres un asistente empático de Previmed. Responde en español, de forma breve y cordial. Si viene al caso, ofrece agendar una visita médica a domicilio. Información de la empresa:"
	}

	msgs := make([]ChatMessage, 0, len(req.History)+1)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, ChatMessage{Role: ChatRoleUser, Content: req.Utterance})

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Complete(ctx, LLMRequest{
		System:      []string{persona + "\n\n" + r.context},
		Messages:    msgs,
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: info responder: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return cannedInfoReply(req.Fallback), nil
	}
	return resp.Text, nil
}
