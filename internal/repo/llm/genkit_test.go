package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
)

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		SystemPrompt:    "be brief",
		DefaultProvider: "googleai",
		Timeout:         time.Second,
		Breaker: config.BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 0.5,
			MinRequests:      2,
		},
	}
}

func TestGenerator_Generate(t *testing.T) {
	var gotModel string
	var gotMessages []*ai.Message
	gen := newGenerator(func(_ context.Context, model string, messages []*ai.Message, onChunk func(string)) (string, error) {
		gotModel, gotMessages = model, messages
		onChunk("par")
		onChunk("tial")
		return "partial", nil
	}, testConfig())

	history := []*models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi"},
		{Role: models.RoleUser, Content: "and now?"},
	}
	var chunks []string
	out, err := gen.Generate(context.Background(), history, "gemini-2.5-flash", func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)
	assert.Equal(t, "partial", out)
	assert.Equal(t, []string{"par", "tial"}, chunks)
	assert.Equal(t, "googleai/gemini-2.5-flash", gotModel)

	require.Len(t, gotMessages, 4)
	assert.Equal(t, ai.RoleSystem, gotMessages[0].Role)
	assert.Equal(t, ai.RoleUser, gotMessages[1].Role)
	assert.Equal(t, ai.RoleModel, gotMessages[2].Role)
	assert.Equal(t, ai.RoleUser, gotMessages[3].Role)
}

func TestGenerator_Breaker(t *testing.T) {
	calls := 0
	failure := errors.New("provider down")
	gen := newGenerator(func(context.Context, string, []*ai.Message, func(string)) (string, error) {
		calls++
		return "", failure
	}, testConfig())

	for i := 0; i < 2; i++ {
		_, err := gen.Generate(context.Background(), nil, "openai/gpt-4o", nil)
		assert.ErrorIs(t, err, failure)
	}
	_, err := gen.Generate(context.Background(), nil, "openai/gpt-4o", nil)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, calls)

	t.Run("other providers unaffected", func(t *testing.T) {
		_, err := gen.Generate(context.Background(), nil, "anthropic/claude", nil)
		assert.ErrorIs(t, err, failure)
	})
}

func TestGenerator_CancelDoesNotTrip(t *testing.T) {
	gen := newGenerator(func(ctx context.Context, _ string, _ []*ai.Message, _ func(string)) (string, error) {
		return "", context.Canceled
	}, testConfig())

	for i := 0; i < 5; i++ {
		_, err := gen.Generate(context.Background(), nil, "openai/gpt-4o", nil)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, gen.breakers.get("openai").State())
}
