package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/knowledge/ai"
)

// fakeModel returns canned responses in order.
type fakeModel struct {
	responses []string
	err       error
	calls     int
	lastUser  string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(messages) > 1 {
		if part, ok := messages[1].Parts[0].(llms.TextContent); ok {
			f.lastUser = part.Text
		}
	}
	if len(f.responses) == 0 {
		return &llms.ContentResponse{}, nil
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.responses[idx]}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestContextualize(t *testing.T) {
	t.Run("plain json", func(t *testing.T) {
		model := &fakeModel{responses: []string{`{"context":"From the maintenance chapter."}`}}
		c := newContextualizerWithModel(model, 0)

		got, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.NoError(t, err)
		assert.Equal(t, "From the maintenance chapter.", got)
		assert.Equal(t, 1, model.calls)
		assert.Contains(t, model.lastUser, "<excerpt>\nchunk\n</excerpt>")
	})

	t.Run("fenced and whitespace", func(t *testing.T) {
		model := &fakeModel{responses: []string{"```json\n{\"context\": \"Part of    the intro.\"}\n```"}}
		c := newContextualizerWithModel(model, 0)

		got, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.NoError(t, err)
		assert.Equal(t, "Part of the intro.", got)
	})

	t.Run("retries malformed output", func(t *testing.T) {
		model := &fakeModel{responses: []string{"not json", `{"context":"ok"}`}}
		c := newContextualizerWithModel(model, 0)

		got, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 2, model.calls)
	})

	t.Run("gives up after retries", func(t *testing.T) {
		model := &fakeModel{responses: []string{"garbage"}}
		c := newContextualizerWithModel(model, 0)

		_, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.Error(t, err)
		assert.Equal(t, maxParseAttempts, model.calls)
	})

	t.Run("model error", func(t *testing.T) {
		model := &fakeModel{err: errors.New("unavailable")}
		c := newContextualizerWithModel(model, 0)

		_, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.Error(t, err)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("no choices", func(t *testing.T) {
		model := &fakeModel{}
		c := newContextualizerWithModel(model, 0)

		got, err := c.Contextualize(context.Background(), "doc", "chunk")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("truncates document", func(t *testing.T) {
		model := &fakeModel{responses: []string{`{"context":""}`}}
		c := newContextualizerWithModel(model, 2)

		_, err := c.Contextualize(context.Background(), strings.Repeat("a", 100), "chunk")
		require.NoError(t, err)
		assert.Contains(t, model.lastUser, "<document>\naaaaaaaa\n</document>")
	})
}

func TestTruncateDocument(t *testing.T) {
	assert.Equal(t, "abc", truncateDocument("abc", 0))
	assert.Equal(t, "abc", truncateDocument("abc", 10))
	assert.Equal(t, "abcd", truncateDocument("abcdefgh", 1))

	// 'é' is two bytes; cutting at byte 4 would split it.
	got := truncateDocument("abcéfgh", 1)
	assert.Equal(t, "abc", got)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "valid", input: `{"context":"x"}`, want: `{"context":"x"}`},
		{name: "missing opening quote", input: `{context":"x"}`, want: `{"context":"x"}`},
		{name: "unquoted key", input: `{ context: "x" }`, want: `{ "context": "x" }`},
		{name: "prose around object", input: "Here you go:\n{\"context\":\"x\"}\nHope that helps.", want: `{"context":"x"}`},
		{name: "raw newline in value", input: "{\"context\":\"line one\nline two\"}", want: `{"context":"line one\nline two"}`},
		{name: "trailing comma", input: `{"context":"x",}`, want: `{"context":"x"}`},
		{name: "punctuation inside value", input: `{"context":"a, b}"}`, want: `{"context":"a, b}"}`},
		{name: "escaped quotes", input: `{"context":"say \"hi\""}`, want: `{"context":"say \"hi\""}`},
		{name: "after comma", input: `{"a":"1", b":"2"}`, want: `{"a":"1", "b":"2"}`},
		{name: "no object", input: "no object here", want: "no object here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := repairJSON(tt.input)
			assert.Equal(t, tt.want, got)
			if strings.Contains(got, "{") {
				var parsed map[string]string
				assert.NoError(t, json.Unmarshal([]byte(got), &parsed))
			}
		})
	}
}

func TestContextualize_RepairsReply(t *testing.T) {
	model := &fakeModel{responses: []string{"Sure.\n```json\n{context: \"From the\nsafety appendix.\",}\n```"}}
	c := newContextualizerWithModel(model, 0)

	got, err := c.Contextualize(context.Background(), "doc", "chunk")
	require.NoError(t, err)
	assert.Equal(t, "From the safety appendix.", got)
	assert.Equal(t, 1, model.calls)
}

func TestNewProvider(t *testing.T) {
	t.Run("embedding only", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig())
		require.NoError(t, err)
		defer p.Close()

		assert.NotNil(t, p.Embedder())
		assert.Nil(t, p.Contextualizer())
	})

	t.Run("with contextual knowledge", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithContextualKnowledge("qwen2.5:3b")))
		require.NoError(t, err)
		defer p.Close()

		assert.NotNil(t, p.Contextualizer())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithEmbeddingModel("")))
		require.Error(t, err)
	})

	t.Run("contextualizer disabled", func(t *testing.T) {
		_, err := NewContextualizer(ai.NewConfig())
		assert.ErrorIs(t, err, ErrContextualizerDisabled)
	})
}
