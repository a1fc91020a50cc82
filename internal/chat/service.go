package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/metrics"
	"github.com/fyrsmithlabs/hmochat/internal/orchestrator"
)

// WelcomeMessage greets a new user before the first turn.
const WelcomeMessage = "Hi there! I am the HMO services chatbot. I would be happy to help you with questions about your HMO services. I can answer in both Hebrew and English. Can you please tell me your name?"

// FallbackMessage is returned when a run produced no assistant text.
const FallbackMessage = "מצטער, אני לא הצלחתי לעבד את הבקשה שלך. אנא נסה שוב."

var (
	// ErrEmptyMessage rejects a request whose message is blank.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrInvalidHistory rejects history entries that are not user or
	// assistant turns.
	ErrInvalidHistory = errors.New("invalid conversation history")
	// ErrInvalidProfile rejects a caller-supplied profile with missing
	// fields.
	ErrInvalidProfile = errors.New("invalid user profile")
)

// Request is one user turn.
type Request struct {
	Message string
	Profile *conversation.Profile
	History []conversation.Message
}

// Response is the outcome of one turn.
type Response struct {
	Message string
	Profile *conversation.Profile
	Phase   conversation.Phase
	// RequiresConfirmation is set when this turn resolved a profile the
	// caller did not already have.
	RequiresConfirmation bool
}

// Runner executes one dialogue run.
type Runner interface {
	Run(ctx context.Context, state *conversation.TurnState) (*orchestrator.Result, error)
}

// Service handles chat turns.
type Service struct {
	runner  Runner
	logger  *logging.Logger
	metrics *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records chat requests on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// NewService creates a chat service over runner.
func NewService(runner Runner, opts ...Option) *Service {
	s := &Service{runner: runner, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("chat")
	return s
}

// Handle runs one turn. Input errors are returned before any run starts;
// run aborts are returned as *orchestrator.AbortError.
func (s *Service) Handle(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Message) == "" {
		s.metrics.RecordChatRequest(string(phaseOf(req.Profile)), "rejected")
		return nil, ErrEmptyMessage
	}
	if err := validateRequest(req); err != nil {
		s.metrics.RecordChatRequest(string(phaseOf(req.Profile)), "rejected")
		return nil, err
	}

	history := make([]conversation.Message, 0, len(req.History)+1)
	history = append(history, req.History...)
	history = append(history, conversation.UserMessage(req.Message))
	state := conversation.NewTurnState(history, req.Profile)

	result, err := s.runner.Run(ctx, state)
	if err != nil {
		s.metrics.RecordChatRequest(string(phaseOf(req.Profile)), "error")
		s.logger.Error(ctx, "chat turn failed",
			zap.Int("history_length", len(req.History)),
			zap.Error(err))
		return nil, err
	}

	text, ok := result.Reply()
	if !ok {
		s.logger.Warn(ctx, "run produced no reply", zap.Int("steps", result.Steps))
		text = FallbackMessage
	}

	resp := &Response{
		Message:              text,
		Profile:              result.State.Profile,
		Phase:                result.State.Phase(),
		RequiresConfirmation: result.ProfileResolved && req.Profile == nil,
	}
	s.metrics.RecordChatRequest(string(resp.Phase), "ok")
	s.logger.Info(ctx, "chat turn completed",
		zap.String("phase", string(resp.Phase)),
		zap.Int("steps", result.Steps),
		zap.Bool("requires_confirmation", resp.RequiresConfirmation))
	return resp, nil
}

// validateRequest checks the caller's history and profile. History may only
// hold user and assistant turns; tool exchanges stay inside a run.
func validateRequest(req Request) error {
	for i, m := range req.History {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("%w: entry %d: %w", ErrInvalidHistory, i, err)
		}
		if m.Role != conversation.RoleUser && m.Role != conversation.RoleAssistant {
			return fmt.Errorf("%w: entry %d has role %q", ErrInvalidHistory, i, m.Role)
		}
	}
	if req.Profile != nil {
		if err := req.Profile.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProfile, err)
		}
	}
	return nil
}

func phaseOf(p *conversation.Profile) conversation.Phase {
	if p != nil {
		return conversation.PhaseQA
	}
	return conversation.PhaseOnboarding
}
