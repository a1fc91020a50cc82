package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/hmochat/internal/config"
	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	defaultRateLimit   = 50.0 / 60.0
	defaultBurst       = 5
)

const tracerName = "github.com/fyrsmithlabs/hmochat/internal/llm"

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator produces the next assistant message for a conversation.
type Generator interface {
	Generate(ctx context.Context, system string, history []conversation.Message, tools []llms.Tool) (conversation.Message, error)
}

// Completer runs a single-shot prompt that must answer with JSON.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// Client implements Generator and Completer on top of an llms.Model.
type Client struct {
	model       llms.Model
	logger      *logging.Logger
	limiter     *rate.Limiter
	temperature float64
	maxRetries  int
	baseBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit replaces the default limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithRetries sets the retry budget and the first backoff interval.
func WithRetries(maxRetries int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseBackoff = baseBackoff
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// New wraps an existing model.
func New(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:       model,
		logger:      logging.NewNop(),
		limiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds an OpenAI or Azure OpenAI backed client.
func NewFromConfig(cfg config.LLMConfig, logger *logging.Logger) (*Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%s API key required", cfg.Provider)
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Provider == "azure" {
		opts = append(opts,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithAPIVersion(cfg.APIVersion),
		)
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	return New(model,
		WithLogger(logger.Named("llm")),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		WithRetries(cfg.MaxRetries, defaultBaseBackoff),
		WithTemperature(cfg.Temperature),
	), nil
}

// Generate asks the model for the next assistant turn. When the model requests
// more than one tool only the first is kept.
func (c *Client) Generate(ctx context.Context, system string, history []conversation.Message, tools []llms.Tool) (conversation.Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.Generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("llm.history_len", len(history)),
		attribute.Int("llm.tools", len(tools)),
	)

	content, err := ToMessageContent(system, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "convert history")
		return conversation.Message{}, err
	}

	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if len(tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(tools))
	}

	resp, err := c.generate(ctx, content, callOpts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
		return conversation.Message{}, err
	}

	msg := c.fromChoice(ctx, resp.Choices[0])
	span.SetAttributes(attribute.Bool("llm.tool_request", msg.RequestsTool()))
	return msg, nil
}

// CompleteJSON sends a system and user prompt in JSON mode and returns the
// raw text of the first choice.
func (c *Client) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.CompleteJSON")
	defer span.End()

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}
	resp, err := c.generate(ctx, content, llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "complete")
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func (c *Client) generate(ctx context.Context, content []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug(ctx, "retrying model call",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.model.GenerateContent(ctx, content, opts...)
		if err == nil {
			if resp == nil || len(resp.Choices) == 0 {
				return nil, ErrEmptyResponse
			}
			return resp, nil
		}

		lastErr = classify(ctx, err)
		if !isRetryableError(lastErr) {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// fromChoice converts the model choice into an assistant message.
func (c *Client) fromChoice(ctx context.Context, choice *llms.ContentChoice) conversation.Message {
	msg := conversation.AssistantMessage(choice.Content)
	if len(choice.ToolCalls) == 0 {
		return msg
	}

	if len(choice.ToolCalls) > 1 {
		dropped := make([]string, 0, len(choice.ToolCalls)-1)
		for _, tc := range choice.ToolCalls[1:] {
			if tc.FunctionCall != nil {
				dropped = append(dropped, tc.FunctionCall.Name)
			}
		}
		c.logger.Warn(ctx, "model requested several tools, keeping the first",
			zap.Int("requested", len(choice.ToolCalls)),
			zap.Strings("dropped", dropped))
	}

	tc := choice.ToolCalls[0]
	req := &conversation.ToolRequest{CallID: tc.ID}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	if tc.FunctionCall != nil {
		req.Name = conversation.Capability(tc.FunctionCall.Name)
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &req.Arguments); err != nil {
				c.logger.Warn(ctx, "tool arguments are not a JSON object",
					zap.String("tool", tc.FunctionCall.Name),
					zap.Error(err))
				req.Arguments = nil
			}
		}
	}
	msg.ToolRequest = req
	return msg
}
