package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/capability"
	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/metrics"
)

const tracerName = "github.com/fyrsmithlabs/hmochat/internal/orchestrator"

// Actor produces the next assistant message for a turn state.
type Actor interface {
	Name() string
	Act(ctx context.Context, state *conversation.TurnState) (conversation.Message, error)
}

// Capabilities are the operations mediators may invoke.
type Capabilities interface {
	ExtractProfile(ctx context.Context, transcript string) (conversation.Profile, error)
	SearchKnowledge(ctx context.Context, question string, k int, filter map[string]string) ([]capability.Excerpt, error)
}

// Config bounds a run.
type Config struct {
	MaxSteps    int
	SearchK     int
	FilterByHMO bool
}

// Result describes a completed run.
type Result struct {
	// State is the final turn state, including the messages added by the run.
	State *conversation.TurnState
	Steps int
	// Trace lists the states executed, in order.
	Trace []State
	// ProfileResolved is true when an extraction succeeded during the run.
	ProfileResolved bool
	// start is the message count before the run.
	start int
}

// Reply returns the last assistant text produced by the run.
func (r *Result) Reply() (string, bool) {
	return r.State.LastAssistantReply(r.start)
}

// Added returns the messages appended during the run.
func (r *Result) Added() []conversation.Message {
	return r.State.Messages[r.start:]
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records runs on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Executor) {
		e.metrics = c
	}
}

// WithConfig overrides the run bounds.
func WithConfig(cfg Config) Option {
	return func(e *Executor) {
		if cfg.MaxSteps > 0 {
			e.cfg.MaxSteps = cfg.MaxSteps
		}
		if cfg.SearchK > 0 {
			e.cfg.SearchK = cfg.SearchK
		}
		e.cfg.FilterByHMO = cfg.FilterByHMO
	}
}

// runInfo is the per-run bookkeeping shared with mediators.
type runInfo struct {
	profileResolved bool
	seenCallIDs     map[string]struct{}
}

type nodeFunc func(ctx context.Context, state *conversation.TurnState, run *runInfo) (conversation.Message, error)

// Executor runs the dialogue graph.
type Executor struct {
	collector Actor
	qa        Actor
	caps      Capabilities
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics.Collector
	nodes     map[State]nodeFunc
}

// NewExecutor creates an executor for the given agents and capabilities.
func NewExecutor(collector, qa Actor, caps Capabilities, opts ...Option) *Executor {
	e := &Executor{
		collector: collector,
		qa:        qa,
		caps:      caps,
		cfg:       Config{MaxSteps: DefaultMaxSteps, SearchK: capability.DefaultK},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("orchestrator")

	e.nodes = map[State]nodeFunc{
		StateCollect:     e.agentNode(e.collector),
		StateCollectTool: e.mediateCollect,
		StateQA:          e.agentNode(e.qa),
		StateQATool:      e.mediateQA,
	}
	return e
}

// MaxSteps returns the configured step ceiling.
func (e *Executor) MaxSteps() int {
	return e.cfg.MaxSteps
}

// Run executes the graph from the entry state until DONE. The state is
// mutated in place and returned in the Result. A non-nil error is always an
// *AbortError, and the caller's state then holds whatever was appended
// before the abort.
func (e *Executor) Run(ctx context.Context, state *conversation.TurnState) (*Result, error) {
	if state == nil || len(state.Messages) == 0 {
		return nil, &AbortError{State: StateCollect, Err: ErrEmptyTurnState}
	}

	start := time.Now()
	current := EntryState(state)
	entryPhase := string(current.Phase())

	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("dialogue.entry_state", string(current)),
		attribute.Int("dialogue.max_steps", e.cfg.MaxSteps),
		attribute.Int("dialogue.history_length", len(state.Messages)),
	)

	result := &Result{State: state, start: len(state.Messages)}
	run := &runInfo{seenCallIDs: make(map[string]struct{})}
	for _, m := range state.Messages {
		if m.ToolRequest != nil && m.ToolRequest.CallID != "" {
			run.seenCallIDs[m.ToolRequest.CallID] = struct{}{}
		}
	}

	fail := func(err *AbortError) (*Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Reason())
		e.metrics.RecordAbort(err.Reason())
		e.metrics.RecordRun(entryPhase, metrics.OutcomeAborted, err.Steps, time.Since(start))
		e.logger.Warn(ctx, "run aborted",
			zap.String("state", string(err.State)),
			zap.Int("steps", err.Steps),
			zap.String("reason", err.Reason()),
			zap.Error(err.Err))
		return nil, err
	}

	for current != StateDone {
		if err := ctx.Err(); err != nil {
			return fail(&AbortError{State: current, Steps: result.Steps, Err: err})
		}
		if result.Steps >= e.cfg.MaxSteps {
			return fail(&AbortError{
				State: current,
				Steps: result.Steps,
				Err:   fmt.Errorf("%w: %d", ErrStepLimitExceeded, e.cfg.MaxSteps),
			})
		}

		msg, err := e.execute(ctx, current, state, run)
		result.Steps++
		result.Trace = append(result.Trace, current)
		e.metrics.RecordNode(string(current))
		if err != nil {
			return fail(&AbortError{State: current, Steps: result.Steps, Err: err})
		}

		e.assignCallID(&msg, run)
		state.Append(msg)

		next, err := Next(current, msg)
		if err != nil {
			return fail(&AbortError{State: current, Steps: result.Steps, Err: err})
		}

		e.logger.Debug(ctx, "state transition",
			zap.String("from", string(current)),
			zap.String("to", string(next)),
			zap.Int("step", result.Steps))
		current = next
	}

	result.ProfileResolved = run.profileResolved
	if run.profileResolved {
		e.metrics.RecordProfileResolved()
	}
	span.SetAttributes(
		attribute.Int("dialogue.steps", result.Steps),
		attribute.Bool("dialogue.profile_resolved", result.ProfileResolved),
	)
	e.metrics.RecordRun(entryPhase, metrics.OutcomeCompleted, result.Steps, time.Since(start))
	e.logger.Info(ctx, "run completed",
		zap.String("entry_phase", entryPhase),
		zap.Int("steps", result.Steps),
		zap.Bool("profile_resolved", result.ProfileResolved),
		zap.Duration("duration", time.Since(start)))

	return result, nil
}

// execute runs one node, converting a panic into ErrNodePanic.
func (e *Executor) execute(ctx context.Context, current State, state *conversation.TurnState, run *runInfo) (msg conversation.Message, err error) {
	node, ok := e.nodes[current]
	if !ok {
		return conversation.Message{}, fmt.Errorf("%w: no node for state %q", ErrInvalidTransition, current)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "orchestrator.node")
	span.SetAttributes(attribute.String("dialogue.state", string(current)))
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "node panicked",
				zap.String("state", string(current)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrNodePanic, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return node(ctx, state, run)
}

func (e *Executor) agentNode(a Actor) nodeFunc {
	return func(ctx context.Context, state *conversation.TurnState, _ *runInfo) (conversation.Message, error) {
		msg, err := a.Act(ctx, state)
		if err != nil {
			return conversation.Message{}, fmt.Errorf("%w: %w", ErrAgentFailed, err)
		}
		return msg, nil
	}
}

// assignCallID gives a tool request a call id that is unique within the
// conversation.
func (e *Executor) assignCallID(msg *conversation.Message, run *runInfo) {
	if msg.ToolRequest == nil {
		return
	}
	id := msg.ToolRequest.CallID
	if _, dup := run.seenCallIDs[id]; id == "" || dup {
		msg.ToolRequest.CallID = uuid.NewString()
	}
	run.seenCallIDs[msg.ToolRequest.CallID] = struct{}{}
}
