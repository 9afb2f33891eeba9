package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/models"
	"github.com/nguyentranbao-ct/mindmap-chat/pkg/logger"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

// GenerateFunc is the raw model call guarded by the generator.
type GenerateFunc func(ctx context.Context, model string, messages []*ai.Message, onChunk func(string)) (string, error)

type Generator struct {
	generate     GenerateFunc
	systemPrompt string
	timeout      time.Duration
	provider     string
	breakers     *breakerSet
	tracer       trace.Tracer
}

func NewGenerator(g *genkit.Genkit, cfg *config.Config) *Generator {
	return newGenerator(genkitGenerate(g), cfg.LLM)
}

func newGenerator(fn GenerateFunc, cfg config.LLMConfig) *Generator {
	return &Generator{
		generate:     fn,
		systemPrompt: cfg.SystemPrompt,
		timeout:      cfg.Timeout,
		provider:     cfg.DefaultProvider,
		breakers:     newBreakerSet(cfg.Breaker),
		tracer:       otel.Tracer("mindmap-chat/llm"),
	}
}

func genkitGenerate(g *genkit.Genkit) GenerateFunc {
	return func(ctx context.Context, model string, messages []*ai.Message, onChunk func(string)) (string, error) {
		opts := []ai.GenerateOption{
			ai.WithMessages(messages...),
			ai.WithModelName(model),
		}
		if onChunk != nil {
			opts = append(opts, ai.WithStreaming(func(_ context.Context, chunk *ai.ModelResponseChunk) error {
				onChunk(chunk.Text())
				return nil
			}))
		}
		resp, err := genkit.Generate(ctx, g, opts...)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
}

// Generate answers the last message of history with model. Calls are
// short-circuited while the model's provider keeps failing.
func (gen *Generator) Generate(ctx context.Context, history []*models.Message, model string, onChunk func(string)) (string, error) {
	model = gen.qualify(model)
	provider, _, _ := strings.Cut(model, "/")

	ctx, span := gen.tracer.Start(ctx, "llm.Generate",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.Int("llm.history", len(history)),
		),
	)
	defer span.End()

	if gen.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gen.timeout)
		defer cancel()
	}

	messages := gen.toMessages(history)
	start := time.Now()
	out, err := gen.breakers.get(provider).Execute(func() (any, error) {
		return gen.generate(ctx, model, messages, onChunk)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		log.Warnw(ctx, "generation failed", "model", model, "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("generate with %s: %w", model, err)
	}

	text, _ := out.(string)
	log.Debugw(ctx, "generation completed", "model", model, "duration", time.Since(start), "chars", len(text))
	return text, nil
}

func (gen *Generator) qualify(model string) string {
	if strings.Contains(model, "/") || gen.provider == "" {
		return model
	}
	return gen.provider + "/" + model
}

func (gen *Generator) toMessages(history []*models.Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+1)
	if gen.systemPrompt != "" {
		messages = append(messages, ai.NewSystemTextMessage(gen.systemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(m.Content))
		default:
			messages = append(messages, ai.NewUserTextMessage(m.Content))
		}
	}
	return messages
}

type breakerSet struct {
	mu       sync.Mutex
	cfg      config.BreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	log      *logger.Logger
}

func newBreakerSet(cfg config.BreakerConfig) *breakerSet {
	return &breakerSet{
		cfg:      cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		log:      logger.MustNamed("llm.breaker"),
	}
}

func (s *breakerSet) get(provider string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[provider]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: s.cfg.MaxRequests,
		Interval:    s.cfg.Interval,
		Timeout:     s.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			s.log.Warnw("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
		// a user stop is not a provider failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	s.breakers[provider] = cb
	return cb
}
