package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/hmochat/internal/capability"
	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/telemetry"
)

func TestExecutor_Spans(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}
	qa.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.SearchKnowledge, "c1", map[string]any{"question": "q"}), nil).Once()
	caps.On("SearchKnowledge", mock.Anything, "q", 3, mock.Anything).
		Return([]capability.Excerpt{{Content: "x"}}, nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).Return(reply("ok"), nil).Once()

	profile := danCohen()
	e := NewExecutor(&MockActor{}, qa, caps)
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("q")}, &profile))
	require.NoError(t, err)

	tt.AssertSpanExists(t, "orchestrator.Run")
	tt.AssertSpanAttribute(t, "orchestrator.Run", "dialogue.entry_state", "QA")
	tt.AssertSpanAttribute(t, "orchestrator.Run", "dialogue.steps", int64(3))
	assert.Len(t, tt.SpansByName("orchestrator.node"), 3)

	run := tt.SpanByName("orchestrator.Run")
	for _, node := range tt.SpansByName("orchestrator.node") {
		assert.Equal(t, run.SpanContext().SpanID(), node.Parent().SpanID())
	}
}

func TestExecutor_AbortMarksSpan(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.Install(t)

	collector := &MockActor{name: "collector"}
	collector.On("Act", mock.Anything, mock.Anything).
		Return(conversation.Message{}, assert.AnError).Once()

	e := NewExecutor(collector, &MockActor{}, &MockCapabilities{})
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("hi")}, nil))
	require.Error(t, err)

	run := tt.SpanByName("orchestrator.Run")
	require.NotNil(t, run)
	assert.Equal(t, codes.Error, run.Status().Code)
	assert.Equal(t, "agent_error", run.Status().Description)
}
