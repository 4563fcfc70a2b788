package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentFlatten(t *testing.T) {
	assert.Equal(t, "hi", Text("hi").Flatten())
	assert.Equal(t, "a\nb", Fragments("a", "", "b").Flatten())
	assert.Equal(t, "", Content{}.Flatten())
	assert.True(t, Fragments("", "").IsEmpty())
}

func TestContentLiteral(t *testing.T) {
	s, ok := Text("hello").Literal()
	assert.True(t, ok)
	assert.Equal(t, "hello", s)

	_, ok = Fragments("hello").Literal()
	assert.False(t, ok)
	assert.Nil(t, Text("x").Parts())
	assert.Equal(t, []string{"x", "y"}, Fragments("x", "y").Parts())
}

func TestContentJSON(t *testing.T) {
	data, err := json.Marshal(Text("plain"))
	require.NoError(t, err)
	assert.JSONEq(t, `"plain"`, string(data))

	data, err = json.Marshal(Fragments("a", "b"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, string(data))

	var c Content
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"x"},{"type":"image_url","text":""},"y"]`), &c))
	assert.Equal(t, []string{"x", "y"}, c.Parts())

	require.NoError(t, json.Unmarshal([]byte(`null`), &c))
	s, ok := c.Literal()
	assert.True(t, ok)
	assert.Empty(t, s)

	assert.Error(t, json.Unmarshal([]byte(`42`), &c))
}

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		Role:    RoleAI,
		Content: Fragments("thinking", "done"),
		ToolCalls: []ToolCall{
			{ID: "c1", Name: "calculator", Arguments: json.RawMessage(`{"expression":"1+1"}`)},
		},
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, msg.Role, got.Role)
	assert.Equal(t, msg.Content.Parts(), got.Content.Parts())
	assert.Equal(t, "c1", got.ToolCalls[0].ID)
	assert.True(t, got.Timestamp.Equal(msg.Timestamp))
	assert.True(t, got.HasToolCalls())
}

func TestToolMessage(t *testing.T) {
	m := ToolMessage(ToolCall{ID: "c7", Name: "current_time"}, "12:00")
	assert.Equal(t, RoleTool, m.Role)
	assert.Equal(t, "c7", m.ToolCallID)
	assert.Equal(t, "current_time", m.Name)
	assert.Equal(t, "12:00", m.Content.Flatten())
	assert.False(t, m.HasToolCalls())
}

func TestConfigOverridesMergeApply(t *testing.T) {
	prompt, model, window := "be brief", "gpt-x", 7
	base := ChatSettings{SystemPrompt: "default", Model: "m0", HistoryWindow: 3, MaxToolSteps: 5}

	global := ConfigOverrides{Model: &model}
	user := ConfigOverrides{SystemPrompt: &prompt}.Merge(ConfigOverrides{HistoryWindow: &window})

	got := user.Apply(global.Apply(base))
	assert.Equal(t, ChatSettings{SystemPrompt: "be brief", Model: "gpt-x", HistoryWindow: 7, MaxToolSteps: 5}, got)
}

func TestSentinelsWithDefaults(t *testing.T) {
	s := Sentinels{NoAnswer: "nada"}.WithDefaults()
	assert.Equal(t, "nada", s.NoAnswer)
	assert.Equal(t, DefaultSentinels().ToolLimit, s.ToolLimit)
}
