package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/domain"
)

// fixedEngines hands out one engine for every key and records the keys.
type fixedEngines struct {
	engine domain.Engine
	keys   []EngineKey
	err    error
}

func (f *fixedEngines) Engine(key EngineKey) (domain.Engine, error) {
	f.keys = append(f.keys, key)
	return f.engine, f.err
}

var testSettings = domain.ChatSettings{SystemPrompt: "sys", Model: "gpt-test", HistoryWindow: 3, MaxToolSteps: 2}

func newChat(eng domain.Engine, sessions *memSessions) (*ChatService, *fixedEngines, *TurnMetrics) {
	engines := &fixedEngines{engine: eng}
	metrics := &TurnMetrics{}
	svc := NewChatService(ChatDeps{Sessions: sessions, Engines: engines, Metrics: metrics})
	return svc, engines, metrics
}

func TestChatService_SendPersistsExchange(t *testing.T) {
	sessions := newMemSessions()
	eng := &scriptedEngine{reply: []domain.Message{aiCalls("1"), toolReply("1", "x"), aiText("done")}}
	svc, engines, metrics := newChat(eng, sessions)
	ctx := context.Background()

	res, err := svc.Send(ctx, ChatInput{SessionKey: "1:main", Text: "hello", Settings: testSettings})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, []EngineKey{{Model: "gpt-test"}}, engines.keys)

	stored, err := svc.History(ctx, "1:main")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleHuman, domain.RoleAI, domain.RoleTool, domain.RoleAI}, roles(stored))

	// The next turn sees the stored exchange.
	eng.reply = []domain.Message{aiText("again")}
	_, err = svc.Send(ctx, ChatInput{SessionKey: "1:main", Text: "more", Settings: testSettings})
	require.NoError(t, err)
	assert.Len(t, eng.gotState.Messages, 6)
	assert.Equal(t, domain.RoleSystem, eng.gotState.Messages[0].Role)

	stored, _ = svc.History(ctx, "1:main")
	assert.Len(t, stored, 6)
	assert.Equal(t, int64(2), metrics.Turns.Load())
}

func TestChatService_SendValidatesInput(t *testing.T) {
	svc, _, _ := newChat(&scriptedEngine{}, newMemSessions())
	ctx := context.Background()

	tests := []ChatInput{
		{SessionKey: "", Text: "hi"},
		{SessionKey: "k", Text: "  "},
		{SessionKey: "k", Text: "hi", Settings: domain.ChatSettings{HistoryWindow: -1}},
		{SessionKey: "k", Text: "hi", Settings: domain.ChatSettings{MaxToolSteps: -2}},
	}
	for _, in := range tests {
		_, err := svc.Send(ctx, in)
		assert.True(t, IsInputError(err), "input %+v: %v", in, err)
	}
}

func TestChatService_SendEngineErrorDoesNotPersist(t *testing.T) {
	sessions := newMemSessions()
	svc, _, metrics := newChat(&scriptedEngine{runErr: errors.New("boom")}, sessions)

	_, err := svc.Send(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings})
	require.Error(t, err)
	stored, _ := sessions.Get(context.Background(), "k")
	assert.Empty(t, stored)
	assert.Equal(t, int64(1), metrics.TurnErrors.Load())
}

func TestChatService_SendPersistError(t *testing.T) {
	sessions := newMemSessions()
	sessions.putErr = errors.New("disk full")
	svc, _, _ := newChat(&scriptedEngine{reply: []domain.Message{aiText("hi")}}, sessions)

	_, err := svc.Send(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings})
	assert.ErrorContains(t, err, "disk full")
}

func TestChatService_StreamPersistsOnCompletion(t *testing.T) {
	sessions := newMemSessions()
	eng := &scriptedEngine{frags: []domain.Fragment{
		chunkFrag(domain.ToolCallChunk{ID: "c1", Name: "calculator"}),
		completeFrag(aiCalls("c1")),
		toolFrag("c1", "2"),
		tokenFrag("two"),
		completeFrag(aiText("two")),
	}}
	svc, _, metrics := newChat(eng, sessions)

	var types []domain.StreamEventType
	for ev, err := range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "1+1", Settings: testSettings}) {
		require.NoError(t, err)
		types = append(types, ev.Type)
	}
	assert.Equal(t, []domain.StreamEventType{domain.StreamEventToolStart, domain.StreamEventToolEnd, domain.StreamEventToken}, types)

	stored, _ := sessions.Get(context.Background(), "k")
	assert.Equal(t, []string{domain.RoleHuman, domain.RoleAI, domain.RoleTool, domain.RoleAI}, roles(stored))
	assert.Equal(t, int64(1), metrics.Turns.Load())
}

func TestChatService_StreamAbandonedIsNotPersisted(t *testing.T) {
	sessions := newMemSessions()
	eng := &scriptedEngine{frags: []domain.Fragment{tokenFrag("a"), tokenFrag("b")}}
	svc, _, _ := newChat(eng, sessions)

	for range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings}) {
		break
	}
	stored, _ := sessions.Get(context.Background(), "k")
	assert.Empty(t, stored)
}

func TestChatService_StreamEngineError(t *testing.T) {
	sessions := newMemSessions()
	eng := &scriptedEngine{frags: []domain.Fragment{tokenFrag("a")}, err: errors.New("gone")}
	svc, _, _ := newChat(eng, sessions)

	var gotErr error
	for _, err := range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings}) {
		if err != nil {
			gotErr = err
		}
	}
	assert.ErrorContains(t, gotErr, "gone")
	stored, _ := sessions.Get(context.Background(), "k")
	assert.Empty(t, stored)
}

func TestChatService_StreamToolLimitIsPersisted(t *testing.T) {
	sessions := newMemSessions()
	eng := &scriptedEngine{
		frags: []domain.Fragment{completeFrag(aiCalls("c1")), toolFrag("c1", "x")},
		err:   domain.NewDomainError("engine", domain.ErrRecursionLimit, ""),
	}
	svc, _, metrics := newChat(eng, sessions)

	var last domain.StreamEvent
	for ev, err := range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings}) {
		require.NoError(t, err)
		last = ev
	}
	assert.Equal(t, domain.DefaultSentinels().ToolLimit, last.Content)
	stored, _ := sessions.Get(context.Background(), "k")
	assert.Len(t, stored, 3)
	assert.Equal(t, int64(1), metrics.ToolLimits.Load())
}

func TestChatService_StreamStopAfterSentinelWithPersistError(t *testing.T) {
	sessions := newMemSessions()
	sessions.putErr = errors.New("disk full")
	eng := &scriptedEngine{err: domain.NewDomainError("engine", domain.ErrRecursionLimit, "")}
	svc, _, _ := newChat(eng, sessions)

	var seen []domain.StreamEvent
	assert.NotPanics(t, func() {
		for ev, err := range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings}) {
			require.NoError(t, err)
			seen = append(seen, ev)
			break
		}
	})
	require.Len(t, seen, 1)
	assert.Equal(t, domain.DefaultSentinels().ToolLimit, seen[0].Content)
}

func TestChatService_StreamPersistErrorIsYielded(t *testing.T) {
	sessions := newMemSessions()
	sessions.putErr = errors.New("disk full")
	svc, _, _ := newChat(&scriptedEngine{frags: []domain.Fragment{tokenFrag("a")}}, sessions)

	var gotErr error
	for _, err := range svc.Stream(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings}) {
		if err != nil {
			gotErr = err
		}
	}
	assert.ErrorContains(t, gotErr, "disk full")
}

func TestChatService_Reset(t *testing.T) {
	sessions := newMemSessions()
	svc, _, _ := newChat(&scriptedEngine{reply: []domain.Message{aiText("hi")}}, sessions)
	ctx := context.Background()

	_, err := svc.Send(ctx, ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings})
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "k"))

	stored, _ := svc.History(ctx, "k")
	assert.Empty(t, stored)
}

func TestChatService_EngineSourceError(t *testing.T) {
	svc := NewChatService(ChatDeps{
		Sessions: newMemSessions(),
		Engines:  &fixedEngines{err: errors.New("unknown model")},
	})
	_, err := svc.Send(context.Background(), ChatInput{SessionKey: "k", Text: "hi", Settings: testSettings})
	assert.ErrorContains(t, err, "unknown model")
}

func TestTurnMetrics_Snapshot(t *testing.T) {
	m := &TurnMetrics{}
	m.record(OutcomeAnswered, nil)
	m.record(OutcomeToolLimit, nil)
	m.record(OutcomeNoAnswer, nil)
	m.record("", errors.New("x"))

	var nilMetrics *TurnMetrics
	nilMetrics.record(OutcomeAnswered, nil)

	assert.Equal(t, MetricsSnapshot{Turns: 4, TurnErrors: 1, ToolLimits: 1, NoAnswers: 1}, m.Snapshot())
}
