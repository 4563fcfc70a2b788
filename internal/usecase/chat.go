package usecase

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"jarvis/internal/domain"
)

// EngineSource hands out the engine for a configuration.
type EngineSource interface {
	Engine(key EngineKey) (domain.Engine, error)
}

// ChatDeps holds injected dependencies for ChatService.
type ChatDeps struct {
	Sessions  domain.SessionStore
	Engines   EngineSource
	Locker    *SessionLocker // optional, nil = a private locker
	Logger    *slog.Logger
	Sentinels domain.Sentinels
	Metrics   *TurnMetrics // optional
}

// ChatInput is one user message addressed to a session.
type ChatInput struct {
	SessionKey string
	Text       string
	Settings   domain.ChatSettings
}

// ChatService runs turns against stored sessions: it loads the session log,
// runs the turn and appends the new exchange to the log.
type ChatService struct {
	deps ChatDeps
}

// NewChatService creates a chat service.
func NewChatService(deps ChatDeps) *ChatService {
	if deps.Locker == nil {
		deps.Locker = NewSessionLocker()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ChatService{deps: deps}
}

// Send runs a single-shot turn and persists it.
func (s *ChatService) Send(ctx context.Context, in ChatInput) (*TurnResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	unlock, err := s.deps.Locker.Lock(ctx, in.SessionKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	engine, history, err := s.begin(ctx, in)
	if err != nil {
		return nil, err
	}

	result, err := RunTurn(ctx, engine, s.turnRequest(in, history))
	if err != nil {
		s.deps.Metrics.record("", err)
		return nil, err
	}
	s.deps.Metrics.record(result.Outcome, nil)

	if err := s.persist(ctx, in.SessionKey, history, result.Transcript); err != nil {
		return nil, err
	}
	s.deps.Logger.Info("turn completed",
		"session", in.SessionKey, "outcome", result.Outcome, "messages", len(result.Transcript))
	return result, nil
}

// Stream runs a streamed turn. The session is persisted only once the event
// sequence completes; abandoned or failed streams leave it unchanged.
func (s *ChatService) Stream(ctx context.Context, in ChatInput) iter.Seq2[domain.StreamEvent, error] {
	return func(yield func(domain.StreamEvent, error) bool) {
		if err := validateInput(in); err != nil {
			yield(domain.StreamEvent{}, err)
			return
		}
		unlock, err := s.deps.Locker.Lock(ctx, in.SessionKey)
		if err != nil {
			yield(domain.StreamEvent{}, err)
			return
		}
		defer unlock()

		engine, history, err := s.begin(ctx, in)
		if err != nil {
			yield(domain.StreamEvent{}, err)
			return
		}

		ts := StreamTurn(ctx, engine, s.turnRequest(in, history))
		stopped := false
		for ev, err := range ts.Events() {
			if err != nil {
				s.deps.Metrics.record("", err)
				yield(domain.StreamEvent{}, err)
				return
			}
			if !yield(ev, nil) {
				stopped = true
				break
			}
		}
		if !ts.Completed() {
			s.deps.Logger.Info("stream abandoned", "session", in.SessionKey)
			return
		}
		s.deps.Metrics.record(ts.Outcome(), nil)
		if err := s.persist(ctx, in.SessionKey, history, ts.Transcript()); err != nil {
			s.deps.Logger.Error("persist streamed turn", "session", in.SessionKey, "error", err)
			// yield must not be called again once the consumer stopped.
			if !stopped {
				yield(domain.StreamEvent{}, err)
			}
			return
		}
		s.deps.Logger.Info("turn completed",
			"session", in.SessionKey, "outcome", ts.Outcome(), "messages", len(ts.Transcript()))
	}
}

// History returns the stored log of a session.
func (s *ChatService) History(ctx context.Context, key string) ([]domain.Message, error) {
	return s.deps.Sessions.Get(ctx, key)
}

// Reset deletes the stored log of a session.
func (s *ChatService) Reset(ctx context.Context, key string) error {
	unlock, err := s.deps.Locker.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return s.deps.Sessions.Delete(ctx, key)
}

func (s *ChatService) begin(ctx context.Context, in ChatInput) (domain.Engine, []domain.Message, error) {
	engine, err := s.deps.Engines.Engine(EngineKey{Model: in.Settings.Model})
	if err != nil {
		return nil, nil, domain.WrapOp("ChatService.engine", err)
	}
	history, err := s.deps.Sessions.Get(ctx, in.SessionKey)
	if err != nil {
		return nil, nil, domain.WrapOp("ChatService.load", err)
	}
	return engine, history, nil
}

func (s *ChatService) turnRequest(in ChatInput, history []domain.Message) TurnRequest {
	return TurnRequest{
		History:      history,
		UserText:     in.Text,
		SystemPrompt: in.Settings.SystemPrompt,
		Window:       in.Settings.HistoryWindow,
		MaxToolSteps: in.Settings.MaxToolSteps,
		SessionKey:   in.SessionKey,
		Sentinels:    s.deps.Sentinels,
	}
}

func (s *ChatService) persist(ctx context.Context, key string, history, transcript []domain.Message) error {
	// A cancelled request context must not lose a finished turn.
	ctx = context.WithoutCancel(ctx)
	updated := make([]domain.Message, 0, len(history)+len(transcript))
	updated = append(updated, history...)
	updated = append(updated, transcript...)
	if err := s.deps.Sessions.Put(ctx, key, updated); err != nil {
		return domain.WrapOp("ChatService.persist", err)
	}
	return nil
}

func validateInput(in ChatInput) error {
	if in.SessionKey == "" {
		return domain.NewDomainError("ChatService", domain.ErrInvalidInput, "empty session key")
	}
	if strings.TrimSpace(in.Text) == "" {
		return domain.NewDomainError("ChatService", domain.ErrInvalidInput, "empty message")
	}
	if in.Settings.HistoryWindow < 0 || in.Settings.MaxToolSteps < 0 {
		return domain.NewDomainError("ChatService", domain.ErrInvalidInput, "negative window or step budget")
	}
	return nil
}

// IsInputError reports whether err was caused by an invalid ChatInput.
func IsInputError(err error) bool { return errors.Is(err, domain.ErrInvalidInput) }
