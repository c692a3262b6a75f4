/*
client.go - Model client with retries and response repair

PURPOSE:
  Wraps a langchaingo chat model behind the three proposal calls the
  strategies make. Every call runs at temperature 0 with JSON mode
  requested, under a per-call timeout, inside a bounded retry loop with
  exponential backoff. A response that isn't clean JSON gets exactly one
  ExtractJSON repair attempt before the attempt counts as failed.

SEE ALSO:
  - proposal.go: the shapes responses must decode and validate into
  - extract.go: the repair path
*/
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"

	"github.com/hearthplan/planner-engine/planning"
)

const (
	defaultModel       = "gpt-4o"
	defaultCallTimeout = 60 * time.Second
	defaultMaxRetries  = 3
)

type Client struct {
	model       llms.Model
	callTimeout time.Duration
	maxRetries  int
	log         *zap.Logger
}

type Option func(*Client)

func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New wraps an existing model (tests pass a fake here).
func New(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:       model,
		callTimeout: defaultCallTimeout,
		maxRetries:  defaultMaxRetries,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewOpenAI builds a client over the OpenAI chat API. An empty model
// name selects the default.
func NewOpenAI(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key required")
	}
	if model == "" {
		model = defaultModel
	}
	chat, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}
	return New(chat, opts...), nil
}

// =============================================================================
// PROPOSAL CALLS
// =============================================================================

func (c *Client) PackWeek(ctx context.Context, pctx *planning.PlanningContext) (*PackWeekProposal, error) {
	user, err := packWeekPrompt(pctx)
	if err != nil {
		return nil, err
	}
	return callProposal[PackWeekProposal](ctx, c, packWeekSystem, user)
}

func (c *Client) CatchUp(ctx context.Context, pctx *planning.PlanningContext, missed []planning.ScheduledEvent) (*CatchUpProposal, error) {
	user, err := catchUpPrompt(pctx, missed)
	if err != nil {
		return nil, err
	}
	return callProposal[CatchUpProposal](ctx, c, catchUpSystem, user)
}

func (c *Client) SuggestPlan(ctx context.Context, pctx *planning.PlanningContext) (*PlanProposal, error) {
	user, err := suggestPrompt(pctx)
	if err != nil {
		return nil, err
	}
	return callProposal[PlanProposal](ctx, c, suggestSystem, user)
}

// =============================================================================
// RETRY LOOP
// =============================================================================

type validatable interface {
	Validate() error
}

func callProposal[T any, PT interface {
	*T
	validatable
}](ctx context.Context, c *Client, system, user string) (*T, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		raw, err := c.complete(ctx, system, user)
		if err == nil {
			v := PT(new(T))
			if err = decodeProposal(raw, v); err == nil {
				return (*T)(v), nil
			}
		}
		lastErr = err
		c.log.Warn("llm.attempt_failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		{Role: schema.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: schema.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(user)}},
	}
	resp, err := c.model.GenerateContent(callCtx, messages,
		llms.WithTemperature(0),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return resp.Choices[0].Content, nil
}

// decodeProposal parses the response into the proposal shape, making
// one repair pass through ExtractJSON when the raw text doesn't decode.
func decodeProposal(raw string, v validatable) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		repaired, exErr := ExtractJSON(raw)
		if exErr != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), v); err != nil {
			return fmt.Errorf("decode repaired: %w", err)
		}
	}
	return v.Validate()
}
