package conversation

import (
	"context"
	"errors"

	"github.com/previmed/visit-assistant/pkg/logging"
)

// FallbackLLMClient answers with the primary provider and retries once on
// the secondary when the primary fails. A cancelled or expired turn context
// is not retried since the caller has already given up on the reply.
type FallbackLLMClient struct {
	primary  LLMClient
	fallback LLMClient
	logger   *logging.Logger
}

// NewFallbackLLMClient wraps primary. A nil fallback disables the retry.
func NewFallbackLLMClient(primary, fallback LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, primaryErr := c.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if c.fallback == nil || ctx.Err() != nil {
		return LLMResponse{}, primaryErr
	}

	c.logger.Warn("llm provider failed, retrying on fallback", "error", primaryErr)
	resp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return LLMResponse{}, errors.Join(primaryErr, fallbackErr)
	}
	return resp, nil
}
