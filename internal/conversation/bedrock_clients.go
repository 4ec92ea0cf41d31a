package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockLLMClient answers through the Bedrock Converse API. Converse
// rejects dialogues that do not alternate roles, so history is normalised
// with prepareTurns first.
type BedrockLLMClient struct {
	api     bedrockConverseAPI
	modelID string
}

func NewBedrockLLMClient(api bedrockConverseAPI, modelID string) *BedrockLLMClient {
	if api == nil {
		panic("conversation: bedrock converse client cannot be nil")
	}
	return &BedrockLLMClient{api: api, modelID: strings.TrimSpace(modelID)}
}

func (c *BedrockLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := c.modelID
	if m := strings.TrimSpace(req.Model); m != "" {
		modelID = m
	}
	if modelID == "" {
		return LLMResponse{}, errors.New("conversation: bedrock model id is required")
	}

	system, turns := prepareTurns(req, true)
	if len(turns) == 0 {
		return LLMResponse{}, errors.New("conversation: bedrock requires a user message")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(modelID),
		Messages:        make([]brtypes.Message, 0, len(turns)),
		InferenceConfig: &brtypes.InferenceConfiguration{Temperature: aws.Float32(req.Temperature)},
	}
	if req.MaxTokens > 0 {
		input.InferenceConfig.MaxTokens = aws.Int32(req.MaxTokens)
	}
	for _, block := range system {
		input.System = append(input.System, &brtypes.SystemContentBlockMemberText{Value: block})
	}
	for _, turn := range turns {
		role := brtypes.ConversationRoleUser
		if turn.Role == ChatRoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: turn.Content}},
		})
	}

	out, err := c.api.Converse(ctx, input)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: bedrock converse: %w", err)
	}
	if out == nil {
		return LLMResponse{}, errors.New("conversation: bedrock response is nil")
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return LLMResponse{}, errors.New("conversation: bedrock response has no message")
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}
	resp := LLMResponse{Text: strings.TrimSpace(text.String()), StopReason: string(out.StopReason)}
	if resp.Text == "" {
		return LLMResponse{}, errors.New("conversation: bedrock response has no text")
	}
	if u := out.Usage; u != nil {
		resp.Usage = TokenUsage{
			InputTokens:  aws.ToInt32(u.InputTokens),
			OutputTokens: aws.ToInt32(u.OutputTokens),
			TotalTokens:  aws.ToInt32(u.TotalTokens),
		}
	}
	return resp, nil
}
