package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/hmochat/internal/agent"
	"github.com/fyrsmithlabs/hmochat/internal/capability"
	"github.com/fyrsmithlabs/hmochat/internal/conversation"
)

// Fixed tool result texts.
const (
	ProfileCollectedMessage = "User information collected successfully! How can I help you with HMO services?"
	NoResultsMessage        = "No relevant information found in the knowledge base."

	extractionErrorFormat = "Error collecting user information: %v"
	searchErrorFormat     = "Error searching for information: %v"
	resultBlockFormat     = "Result %d:\n%s\n"

	maxExcerpts = 3
)

var errMissingQuestion = errors.New("missing question argument")

// pendingRequest returns the tool request the mediator must answer.
func pendingRequest(state *conversation.TurnState) (*conversation.ToolRequest, error) {
	last, ok := state.Last()
	if !ok || !last.RequestsTool() {
		return nil, fmt.Errorf("%w: no pending tool request", ErrInvalidTransition)
	}
	return last.ToolRequest, nil
}

// mediateCollect runs ExtractProfile over the transcript. On success the
// profile replaces the state's; on failure the profile is left as is.
func (e *Executor) mediateCollect(ctx context.Context, state *conversation.TurnState, run *runInfo) (conversation.Message, error) {
	req, err := pendingRequest(state)
	if err != nil {
		return conversation.Message{}, err
	}

	if req.Name != conversation.ExtractProfile {
		return toolError(req, extractionErrorFormat, unsupported(req.Name)), nil
	}

	profile, err := e.caps.ExtractProfile(ctx, state.Transcript())
	if err != nil {
		e.logger.Warn(ctx, "profile extraction failed",
			zap.String("call_id", req.CallID),
			zap.Error(err))
		return toolError(req, extractionErrorFormat, err), nil
	}

	state.SetProfile(profile)
	run.profileResolved = true
	return conversation.ToolResult(req.CallID, ProfileCollectedMessage, false), nil
}

// mediateQA runs SearchKnowledge for the requested question and formats the
// top excerpts as numbered blocks.
func (e *Executor) mediateQA(ctx context.Context, state *conversation.TurnState, _ *runInfo) (conversation.Message, error) {
	req, err := pendingRequest(state)
	if err != nil {
		return conversation.Message{}, err
	}

	if req.Name != conversation.SearchKnowledge {
		return toolError(req, searchErrorFormat, unsupported(req.Name)), nil
	}
	question, ok := req.StringArg(agent.QuestionArg)
	if !ok {
		return toolError(req, searchErrorFormat, errMissingQuestion), nil
	}

	var filter map[string]string
	if e.cfg.FilterByHMO && state.Profile != nil {
		if key := state.Profile.HMOKey(); key != "" {
			filter = map[string]string{"hmo": key}
		}
	}

	excerpts, err := e.caps.SearchKnowledge(ctx, question, e.cfg.SearchK, filter)
	if err != nil {
		e.logger.Warn(ctx, "knowledge search failed",
			zap.String("call_id", req.CallID),
			zap.Error(err))
		return toolError(req, searchErrorFormat, err), nil
	}

	return conversation.ToolResult(req.CallID, formatExcerpts(excerpts), false), nil
}

func formatExcerpts(excerpts []capability.Excerpt) string {
	if len(excerpts) == 0 {
		return NoResultsMessage
	}
	if len(excerpts) > maxExcerpts {
		excerpts = excerpts[:maxExcerpts]
	}
	blocks := make([]string, len(excerpts))
	for i, ex := range excerpts {
		blocks[i] = fmt.Sprintf(resultBlockFormat, i+1, ex.Content)
	}
	return strings.Join(blocks, "\n")
}

func toolError(req *conversation.ToolRequest, format string, err error) conversation.Message {
	return conversation.ToolResult(req.CallID, fmt.Sprintf(format, err), true)
}

func unsupported(name conversation.Capability) error {
	return fmt.Errorf("unsupported capability %q", name)
}
