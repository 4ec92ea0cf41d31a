package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/previmed/visit-assistant/pkg/logging"
)

// Service processes one caller turn.
type Service interface {
	ProcessMessage(ctx context.Context, req TurnRequest) (TurnResponse, error)
}

// TurnRequest is a single inbound utterance.
type TurnRequest struct {
	Utterance string
	// CallerKey is the caller's document number, if known.
	CallerKey string
	// History seeds a brand new session's rolling history.
	History []ChatMessage
}

// TurnResponse is the reply envelope returned to callers.
type TurnResponse struct {
	OK      bool           `json:"ok"`
	Action  Action         `json:"action"`
	Message string         `json:"message"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// TurnObserver receives per-turn counters. Implementations must be safe
// for concurrent use.
type TurnObserver interface {
	ObserveTurn(action string, ok bool)
	ObserveSessionClosed(reason string)
}

// Engine runs the extract, resolve and execute loop for each turn.
type Engine struct {
	store        SessionStore
	orchestrator *Orchestrator
	classifier   IntentClassifier
	observer     TurnObserver
	locks        *keyedLock
	historyLimit int
	logger       *logging.Logger
	now          func() time.Time
}

var _ Service = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithIntentClassifier consults the classifier on turns the rules could not
// place in the booking flow.
func WithIntentClassifier(c IntentClassifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

func WithTurnObserver(obs TurnObserver) EngineOption {
	return func(e *Engine) { e.observer = obs }
}

func WithHistoryLimit(limit int) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.historyLimit = limit
		}
	}
}

func WithEngineLogger(l *logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an Engine around a store and an orchestrator.
func NewEngine(store SessionStore, orchestrator *Orchestrator, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if orchestrator == nil {
		panic("conversation: orchestrator cannot be nil")
	}
	e := &Engine{
		store:        store,
		orchestrator: orchestrator,
		locks:        newKeyedLock(),
		historyLimit: DefaultHistoryLimit,
		logger:       logging.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessMessage handles one turn. Turns for the same caller key run one at
// a time. Only an empty utterance is an error; everything else is reported
// in the envelope.
func (e *Engine) ProcessMessage(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return TurnResponse{}, ErrEmptyUtterance
	}
	callerKey := strings.TrimSpace(req.CallerKey)
	key := callerKey
	if key == "" {
		key = DefaultSessionKey
	}

	unlock := e.locks.Lock(key)
	defer unlock()

	sess, err := e.load(ctx, key, req.History)
	if err != nil {
		e.logger.Error("failed to load session", "session", logging.MaskDigits(key), "error", err)
		resp := TurnResponse{OK: false, Action: ActionFallback, Message: replyTemporaryFailure}
		e.observeTurn(resp)
		return resp, nil
	}

	e.orchestrator.extractor.Enrich(&sess.Slots, utterance, callerKey)
	action := Resolve(sess.Slots, utterance, IntentUnknown)
	if (action == ActionGeneralInfo || action == ActionFallback) && e.classifier != nil {
		hint := e.classifier.Classify(ctx, utterance)
		if hint == IntentVisit {
			sess.Slots.VisitRequested = true
		}
		action = Resolve(sess.Slots, utterance, hint)
	}

	out := e.orchestrator.Execute(ctx, sess, action, utterance)
	sess.AppendHistory(e.historyLimit,
		ChatMessage{Role: ChatRoleUser, Content: utterance},
		ChatMessage{Role: ChatRoleAssistant, Content: out.Message},
	)

	if out.Closed != "" {
		if err := e.store.Delete(ctx, key); err != nil {
			e.logger.Error("failed to delete session", "session", logging.MaskDigits(key), "error", err)
		}
		if e.observer != nil {
			e.observer.ObserveSessionClosed(out.Closed)
		}
	} else {
		sess.UpdatedAt = e.now()
		if err := e.store.Save(ctx, sess); err != nil {
			e.logger.Error("failed to save session", "session", logging.MaskDigits(key), "error", err)
		}
	}

	resp := TurnResponse{OK: out.OK, Action: out.Action, Message: out.Message, Detail: out.Detail}
	e.logger.Info("turn processed",
		"session", logging.MaskDigits(key),
		"action", string(resp.Action),
		"ok", resp.OK,
	)
	e.observeTurn(resp)
	return resp, nil
}

func (e *Engine) load(ctx context.Context, key string, seed []ChatMessage) (*Session, error) {
	sess, err := e.store.Get(ctx, key)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	sess = NewSession(key, e.now())
	for _, msg := range seed {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		sess.AppendHistory(e.historyLimit, ChatMessage{Role: normalizeRole(msg.Role), Content: content})
	}
	return sess, nil
}

func (e *Engine) observeTurn(resp TurnResponse) {
	if e.observer != nil {
		e.observer.ObserveTurn(string(resp.Action), resp.OK)
	}
}
