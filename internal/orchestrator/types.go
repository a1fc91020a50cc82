package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

// State is a node of the dialogue graph.
type State string

const (
	StateCollect     State = "COLLECT"
	StateCollectTool State = "COLLECT_TOOL"
	StateQA          State = "QA"
	StateQATool      State = "QA_TOOL"
	StateDone        State = "DONE"
)

// AllStates returns every state, terminal last.
func AllStates() []State {
	return []State{StateCollect, StateCollectTool, StateQA, StateQATool, StateDone}
}

// DefaultMaxSteps bounds a run when no ceiling is configured.
const DefaultMaxSteps = 50

// Sentinel errors wrapped by AbortError.
var (
	ErrStepLimitExceeded = errors.New("step limit exceeded")
	ErrNodePanic         = errors.New("node panicked")
	ErrAgentFailed       = errors.New("agent failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyTurnState    = errors.New("turn state has no messages")
)

// AbortError reports a run that could not converge.
type AbortError struct {
	// State is the node that was about to run or failed.
	State State
	// Steps is the number of nodes executed before the abort.
	Steps int
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("run aborted in %s after %d steps: %v", e.State, e.Steps, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Reason is a short label for metrics.
func (e *AbortError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrStepLimitExceeded):
		return "step_limit"
	case errors.Is(e.Err, ErrNodePanic):
		return "panic"
	case errors.Is(e.Err, ErrAgentFailed):
		return "agent_error"
	case errors.Is(e.Err, ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "canceled"
	}
}

// EntryState is COLLECT without a profile and QA with one.
func EntryState(state *conversation.TurnState) State {
	if state.HasProfile() {
		return StateQA
	}
	return StateCollect
}

// Next returns the successor of state given the message its node appended.
func Next(state State, last conversation.Message) (State, error) {
	switch state {
	case StateCollectTool:
		return StateQA, nil
	case StateQATool:
		return StateQA, nil
	case StateCollect:
		return afterAgent(state, StateCollectTool, last)
	case StateQA:
		return afterAgent(state, StateQATool, last)
	case StateDone:
		return "", fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, state)
	default:
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, state)
	}
}

func afterAgent(state, toolState State, last conversation.Message) (State, error) {
	switch last.Role {
	case conversation.RoleAssistant:
		if last.RequestsTool() {
			return toolState, nil
		}
		return StateDone, nil
	case conversation.RoleTool:
		return StateDone, nil
	case conversation.RoleUser:
		return state, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q after %s", ErrInvalidTransition, last.Role, state)
	}
}

// Phase maps a state to the dialogue phase it belongs to.
func (s State) Phase() conversation.Phase {
	switch s {
	case StateCollect, StateCollectTool:
		return conversation.PhaseOnboarding
	default:
		return conversation.PhaseQA
	}
}
