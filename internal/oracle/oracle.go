// Package oracle gives call sites typed, timeout-bound access to the
// reasoning backend. Every failure is reported as ErrUnavailable or
// ErrMalformed so callers can substitute their own fallback value.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/provider"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrUnavailable covers timeouts, transport errors and missing providers.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrMalformed means a reply arrived but did not match the call-site schema.
	ErrMalformed = errors.New("oracle response malformed")
)

// Call-site purposes, used by the provider router for bindings.
const (
	PurposeClassify = "classify"
	PurposeClarify  = "clarify"
	PurposeDelegate = "delegate"
	PurposeFeedback = "feedback"
	PurposeAnswer   = "answer"
)

// Prompt is a structured request to the oracle.
type Prompt struct {
	Purpose      string
	Instructions string
	Body         string
	MaxTokens    int
	// JSON marks prompts whose reply must be a single JSON object.
	JSON bool
}

// Oracle answers prompts with free text.
type Oracle interface {
	Ask(ctx context.Context, p Prompt) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, p Prompt) (string, error)

func (f Func) Ask(ctx context.Context, p Prompt) (string, error) { return f(ctx, p) }

// Unavailable is an Oracle that always fails. Used when no provider is configured.
var Unavailable Oracle = Func(func(context.Context, Prompt) (string, error) {
	return "", fmt.Errorf("%w: no provider configured", ErrUnavailable)
})

// Router is the subset of provider.Router the client needs.
type Router interface {
	Route(ctx context.Context, purpose string, req *provider.ChatRequest) (*provider.ChatResponse, error)
}

// Options tune the client.
type Options struct {
	Model         string
	Timeout       time.Duration
	MaxConcurrent int64
}

// Client is the production Oracle: every call is bounded by a timeout and a
// weighted semaphore shared across all call sites.
type Client struct {
	router  Router
	model   string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

// NewClient wraps a provider router.
func NewClient(router Router, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.Model == "" {
		opts.Model = "default"
	}
	return &Client{
		router:  router,
		model:   opts.Model,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:  logger,
	}
}

// Ask sends the prompt and returns the raw reply text.
func (c *Client) Ask(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: waiting for slot: %w", ErrUnavailable, err)
	}
	defer c.sem.Release(1)

	req := &provider.ChatRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   p.MaxTokens,
		JSON:        p.JSON,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}
	if p.Instructions != "" {
		req.Messages = append(req.Messages, provider.Message{Role: "system", Content: p.Instructions})
	}
	req.Messages = append(req.Messages, provider.Message{Role: "user", Content: p.Body})

	start := time.Now()
	resp, err := c.router.Route(ctx, p.Purpose, req)
	if err != nil {
		c.logger.Warn("oracle call failed",
			zap.String("purpose", p.Purpose), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrMalformed)
	}
	c.logger.Debug("oracle call",
		zap.String("purpose", p.Purpose),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return resp.Content, nil
}
