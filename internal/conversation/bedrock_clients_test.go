package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type stubConverseAPI struct {
	out     *bedrockruntime.ConverseOutput
	err     error
	lastReq *bedrockruntime.ConverseInput
}

func (s *stubConverseAPI) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastReq = params
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(30), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(35)},
	}
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &stubConverseAPI{out: textOutput(" El plan familiar cubre hasta 6 personas. ")}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System: []string{"Eres el asistente de Previmed."},
		Messages: []ChatMessage{
			{Role: "bot", Content: "¡Hola! ¿En qué te ayudo?"},
			{Role: ChatRoleUser, Content: "hola"},
			{Role: ChatRoleUser, Content: "¿qué cubre el plan familiar?"},
		},
		MaxTokens: 200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "El plan familiar cubre hasta 6 personas." || resp.StopReason != "end_turn" || resp.Usage.TotalTokens != 35 {
		t.Fatalf("unexpected response %#v", resp)
	}

	in := api.lastReq
	if aws.ToString(in.ModelId) != "anthropic.claude-3-haiku" || aws.ToInt32(in.InferenceConfig.MaxTokens) != 200 {
		t.Fatalf("unexpected request config %#v", in)
	}
	if len(in.System) != 1 {
		t.Fatalf("expected one system block, got %d", len(in.System))
	}
	if len(in.Messages) != 1 || in.Messages[0].Role != brtypes.ConversationRoleUser {
		t.Fatalf("expected leading greeting dropped and user turns merged, got %#v", in.Messages)
	}
	block, ok := in.Messages[0].Content[0].(*brtypes.ContentBlockMemberText)
	if !ok || block.Value != "hola\n¿qué cubre el plan familiar?" {
		t.Fatalf("unexpected merged content %#v", in.Messages[0].Content)
	}
}

func TestBedrockLLMClient_RequestOverridesModel(t *testing.T) {
	api := &stubConverseAPI{out: textOutput("ok")}
	client := NewBedrockLLMClient(api, "default-model")

	if _, err := client.Complete(context.Background(), LLMRequest{Model: "other-model", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aws.ToString(api.lastReq.ModelId) != "other-model" {
		t.Fatalf("expected request model, got %q", aws.ToString(api.lastReq.ModelId))
	}
}

func TestBedrockLLMClient_Errors(t *testing.T) {
	user := []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}
	tests := []struct {
		name     string
		api      *stubConverseAPI
		modelID  string
		messages []ChatMessage
		want     string
	}{
		{"missing model", &stubConverseAPI{out: textOutput("x")}, "", user, "model id"},
		{"no user turn", &stubConverseAPI{out: textOutput("x")}, "m", []ChatMessage{{Role: ChatRoleAssistant, Content: "hola"}}, "user message"},
		{"transport", &stubConverseAPI{err: errors.New("throttled")}, "m", user, "throttled"},
		{"nil output", &stubConverseAPI{}, "m", user, "nil"},
		{"blank text", &stubConverseAPI{out: textOutput("   ")}, "m", user, "no text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewBedrockLLMClient(tt.api, tt.modelID)
			_, err := client.Complete(context.Background(), LLMRequest{Messages: tt.messages})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestPrepareTurns(t *testing.T) {
	system, turns := prepareTurns(LLMRequest{
		System: []string{" contexto ", ""},
		Messages: []ChatMessage{
			{Role: "assistant", Content: "Hola"},
			{Role: "system", Content: "regla extra"},
			{Role: "user", Content: "uno"},
			{Role: "", Content: "dos"},
			{Role: "model", Content: "respuesta"},
			{Role: "user", Content: "  "},
		},
	}, true)

	if len(system) != 2 || system[0] != "contexto" || system[1] != "regla extra" {
		t.Fatalf("unexpected system %#v", system)
	}
	if len(turns) != 2 || turns[0].Content != "uno\ndos" || turns[1].Role != ChatRoleAssistant {
		t.Fatalf("unexpected turns %#v", turns)
	}

	_, kept := prepareTurns(LLMRequest{Messages: []ChatMessage{{Role: "assistant", Content: "Hola"}}}, false)
	if len(kept) != 1 {
		t.Fatalf("expected assistant turn kept without userFirst, got %#v", kept)
	}
}

func TestFallbackLLMClient_JoinsErrorsAndStopsOnCancel(t *testing.T) {
	req := LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hola"}}}

	primary := &stubLLMClient{text: "primario"}
	secondary := &stubLLMClient{text: "respaldo"}
	resp, err := NewFallbackLLMClient(primary, secondary, nil).Complete(context.Background(), req)
	if err != nil || resp.Text != "primario" || secondary.calls != 0 {
		t.Fatalf("expected primary answer, got %#v (err %v, fallback calls %d)", resp, err, secondary.calls)
	}

	primary = &stubLLMClient{err: errors.New("primary down")}
	resp, err = NewFallbackLLMClient(primary, secondary, nil).Complete(context.Background(), req)
	if err != nil || resp.Text != "respaldo" {
		t.Fatalf("expected fallback answer, got %#v (err %v)", resp, err)
	}

	failing := &stubLLMClient{err: errors.New("fallback down")}
	_, err = NewFallbackLLMClient(primary, failing, nil).Complete(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "primary down") || !strings.Contains(err.Error(), "fallback down") {
		t.Fatalf("expected both errors, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	untouched := &stubLLMClient{text: "respaldo"}
	if _, err := NewFallbackLLMClient(primary, untouched, nil).Complete(ctx, req); err == nil || untouched.calls != 0 {
		t.Fatalf("expected no fallback after cancellation, got err %v calls %d", err, untouched.calls)
	}
}
