package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const intentClassifierPrompt = `Clasifica la intención del usuario de un servicio de atención médica domiciliaria.
Responde SOLO con JSON: {"intent": "<visita|informacion|cancelar|otro>"}

- visita: quiere agendar, continuar o confirmar una visita médica a domicilio
- informacion: pregunta por la empresa, planes, pagos, cobertura u horarios
- cancelar: quiere cancelar o abandonar la solicitud
- otro: cualquier otra cosa (saludos, charla, temas ajenos)`

// IntentClassifier produces a hint for ambiguous turns.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance string) Intent
}

// LLMIntentClassifier asks a language model for the caller's intent. It
// never fails: errors and unparseable output yield IntentUnknown.
type LLMIntentClassifier struct {
	client  LLMClient
	timeout time.Duration
}

// NewLLMIntentClassifier creates a classifier. A non-positive timeout
// means 10s.
func NewLLMIntentClassifier(client LLMClient, timeout time.Duration) *LLMIntentClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LLMIntentClassifier{client: client, timeout: timeout}
}

func (c *LLMIntentClassifier) Classify(ctx context.Context, utterance string) Intent {
	utterance = strings.TrimSpace(utterance)
	if c == nil || c.client == nil || utterance == "" {
		return IntentUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Complete(ctx, LLMRequest{
		System:    []string{intentClassifierPrompt},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: utterance}},
		MaxTokens: 20,
	})
	if err != nil {
		return IntentUnknown
	}
	return parseIntentResponse(resp.Text)
}

// parseIntentResponse accepts {"intent": "..."} with surrounding noise, or
// a bare word.
func parseIntentResponse(text string) Intent {
	content := strings.TrimSpace(text)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		var result struct {
			Intent string `json:"intent"`
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &result); err != nil {
			return IntentUnknown
		}
		return ParseIntent(result.Intent)
	}
	return ParseIntent(content)
}
