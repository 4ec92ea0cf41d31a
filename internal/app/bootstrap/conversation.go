package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/previmed/visit-assistant/internal/compliance"
	appconfig "github.com/previmed/visit-assistant/internal/config"
	"github.com/previmed/visit-assistant/internal/conversation"
	"github.com/previmed/visit-assistant/internal/notify"
	"github.com/previmed/visit-assistant/internal/observability/metrics"
	"github.com/previmed/visit-assistant/pkg/logging"
)

// NeedsAWS reports whether any configured provider talks to AWS.
func NeedsAWS(cfg *appconfig.Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.LLMProvider == "bedrock" || cfg.LLMFallbackProvider == "bedrock" || cfg.EmailProvider == "ses"
}

// BuildLLMClient returns the configured language model, wrapped with the
// fallback provider when one is set. A nil client means the assistant runs
// without a model: canned answers and no intent hints.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (conversation.LLMClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		logger.Warn("no LLM provider configured; general questions get canned answers")
		return nil, nil
	}

	secondaryName := cfg.LLMFallbackProvider
	if secondaryName == "" || secondaryName == cfg.LLMProvider {
		logger.Info("using LLM provider", "provider", cfg.LLMProvider)
		return primary, nil
	}
	secondary, err := buildProvider(ctx, secondaryName, cfg, awsCfg)
	if err != nil || secondary == nil {
		logger.Warn("fallback LLM provider unavailable", "provider", secondaryName, "error", err)
		return primary, nil
	}
	logger.Info("using LLM provider with fallback", "provider", cfg.LLMProvider, "fallback", secondaryName)
	return conversation.NewFallbackLLMClient(primary, secondary, logger), nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg *aws.Config) (conversation.LLMClient, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "openai":
		client, err := conversation.NewOpenAILLMClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: openai: %w", err)
		}
		return client, nil
	case "gemini":
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		return client, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bootstrap: bedrock requires BEDROCK_MODEL_ID")
		}
		if awsCfg == nil {
			return nil, fmt.Errorf("bootstrap: bedrock requires AWS config")
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}

// EngineDeps are the collaborators of the turn engine. Only Config,
// Directory and Store are required.
type EngineDeps struct {
	Config    *appconfig.Config
	Directory conversation.Directory
	Store     conversation.SessionStore
	LLM       conversation.LLMClient
	Audit     *compliance.AuditService
	Notifier  *notify.VisitNotifier
	Metrics   *metrics.ConversationMetrics
	Logger    *logging.Logger
}

// BuildEngine wires extractor, orchestrator and engine from deps.
func BuildEngine(deps EngineDeps) (*conversation.Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Directory == nil || deps.Store == nil {
		return nil, fmt.Errorf("bootstrap: directory and session store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	institution, err := conversation.LoadInstitutionContext(cfg.InstitutionContextFile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	extractor := conversation.NewExtractor(conversation.WithAddressFallback(cfg.AddressAcceptAnyText))
	orchestratorOpts := []conversation.OrchestratorOption{
		conversation.WithResponder(conversation.NewInfoResponder(deps.LLM, institution, cfg.LLMTimeout, logger)),
		conversation.WithOrchestratorLogger(logger),
	}
	if deps.Audit != nil {
		orchestratorOpts = append(orchestratorOpts, conversation.WithAuditLogger(deps.Audit))
	}
	if deps.Notifier != nil {
		orchestratorOpts = append(orchestratorOpts, conversation.WithVisitNotifier(deps.Notifier))
	}
	orchestrator := conversation.NewOrchestrator(deps.Directory, extractor, orchestratorOpts...)

	engineOpts := []conversation.EngineOption{
		conversation.WithHistoryLimit(cfg.HistoryLimit),
		conversation.WithEngineLogger(logger),
	}
	if deps.LLM != nil {
		engineOpts = append(engineOpts, conversation.WithIntentClassifier(conversation.NewLLMIntentClassifier(deps.LLM, cfg.LLMTimeout)))
	}
	if deps.Metrics != nil {
		engineOpts = append(engineOpts, conversation.WithTurnObserver(deps.Metrics))
	}
	return conversation.NewEngine(deps.Store, orchestrator, engineOpts...), nil
}
