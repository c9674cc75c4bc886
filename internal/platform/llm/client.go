package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/protocorn/launchway/internal/config"
	"github.com/protocorn/launchway/internal/platform/logger"
	"go.uber.org/zap"
)

var (
	// ErrQuotaExhausted is returned when the global LLM budget denies the call
	ErrQuotaExhausted = errors.New("llm quota exhausted")
	// ErrEmptyResponse is returned when the model produced no text content
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// QuotaGate admits LLM calls against the global budget. Implemented by the
// rate-limit module; every call holds a reservation for its full duration.
type QuotaGate interface {
	// Reserve blocks until the caller may issue one model call, or fails if
	// the minute/day budget is exhausted. Lower priority is served sooner.
	Reserve(ctx context.Context, userID string, priority int) (token string, err error)
	// Release frees the reservation. Must be called on every path.
	Release(ctx context.Context, token string)
	// RecordUsage charges one successful call. Failures here never fail the
	// call itself; the gate logs unbilled usage instead.
	RecordUsage(ctx context.Context, userID string)
}

// Request is one prompt for the model
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	UserID    string
	Priority  int
}

// Gateway is the single choke-point for model calls
type Gateway struct {
	client anthropic.Client
	cfg    config.LLMConfig
	gate   QuotaGate
	log    *logger.Logger
}

// NewGateway creates the gateway around the Anthropic client
func NewGateway(cfg config.LLMConfig, gate QuotaGate, log *logger.Logger) *Gateway {
	return &Gateway{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
		gate:   gate,
		log:    log,
	}
}

// Generate issues one model call under the global quota. The reservation is
// held for the full call and released on every path.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	token, err := g.gate.Reserve(ctx, req.UserID, req.Priority)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrQuotaExhausted, err)
	}
	defer g.gate.Release(ctx, token)

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.cfg.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			g.log.Warn("retrying llm call",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		msg, err := g.client.Messages.New(callCtx, params)
		cancel()
		if err != nil {
			if !isRetryable(err) || attempt == g.cfg.MaxRetries {
				return "", fmt.Errorf("llm call failed: %w", err)
			}
			lastErr = err
			continue
		}

		text := collectText(msg)
		if text == "" {
			return "", ErrEmptyResponse
		}
		g.gate.RecordUsage(ctx, req.UserID)
		return text, nil
	}
	return "", fmt.Errorf("llm call failed: %w", lastErr)
}

func collectText(msg *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
