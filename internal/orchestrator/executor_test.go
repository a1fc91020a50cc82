package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/hmochat/internal/capability"
	"github.com/fyrsmithlabs/hmochat/internal/conversation"
	"github.com/fyrsmithlabs/hmochat/internal/logging"
	"github.com/fyrsmithlabs/hmochat/internal/metrics"
)

// MockActor is a mock implementation of Actor.
type MockActor struct {
	mock.Mock
	name string
}

func (m *MockActor) Name() string { return m.name }

func (m *MockActor) Act(ctx context.Context, state *conversation.TurnState) (conversation.Message, error) {
	args := m.Called(ctx, state)
	return args.Get(0).(conversation.Message), args.Error(1)
}

// MockCapabilities is a mock implementation of Capabilities.
type MockCapabilities struct {
	mock.Mock
}

func (m *MockCapabilities) ExtractProfile(ctx context.Context, transcript string) (conversation.Profile, error) {
	args := m.Called(ctx, transcript)
	return args.Get(0).(conversation.Profile), args.Error(1)
}

func (m *MockCapabilities) SearchKnowledge(ctx context.Context, question string, k int, filter map[string]string) ([]capability.Excerpt, error) {
	args := m.Called(ctx, question, k, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]capability.Excerpt), args.Error(1)
}

// actorFunc adapts a function to Actor for scripted runs.
type actorFunc func(ctx context.Context, state *conversation.TurnState) (conversation.Message, error)

func (f actorFunc) Name() string { return "scripted" }

func (f actorFunc) Act(ctx context.Context, state *conversation.TurnState) (conversation.Message, error) {
	return f(ctx, state)
}

func reply(text string) conversation.Message {
	return conversation.AssistantMessage(text)
}

func requestTool(name conversation.Capability, callID string, args map[string]any) conversation.Message {
	msg := conversation.AssistantMessage("")
	msg.ToolRequest = &conversation.ToolRequest{Name: name, CallID: callID, Arguments: args}
	return msg
}

func danCohen() conversation.Profile {
	return conversation.Profile{
		FirstName:     "Dan",
		LastName:      "Cohen",
		NationalID:    "123456789",
		Gender:        "male",
		DateOfBirth:   "1990-05-12",
		HMO:           "Maccabi",
		InsuranceTier: "Gold",
	}
}

func TestExecutor_NewTurnAsksForDetails(t *testing.T) {
	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	collector.On("Act", mock.Anything, mock.Anything).
		Return(reply("Hello! What is your full name?"), nil).Once()

	e := NewExecutor(collector, qa, caps)
	state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("Hi")}, nil)

	result, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, []State{StateCollect}, result.Trace)
	assert.False(t, result.ProfileResolved)
	assert.Equal(t, conversation.PhaseOnboarding, result.State.Phase())

	text, ok := result.Reply()
	require.True(t, ok)
	assert.Equal(t, "Hello! What is your full name?", text)

	collector.AssertExpectations(t)
	qa.AssertNotCalled(t, "Act", mock.Anything, mock.Anything)
	caps.AssertNotCalled(t, "ExtractProfile", mock.Anything, mock.Anything)
}

func TestExecutor_ExtractionResolvesProfile(t *testing.T) {
	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	collector.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.ExtractProfile, "call_1", nil), nil).Once()
	caps.On("ExtractProfile", mock.Anything, mock.MatchedBy(func(tr string) bool {
		return tr != ""
	})).Return(danCohen(), nil).Once()
	qa.On("Act", mock.Anything, mock.MatchedBy(func(s *conversation.TurnState) bool {
		return s.HasProfile()
	})).Return(reply("Thanks Dan, your details are confirmed."), nil).Once()

	e := NewExecutor(collector, qa, caps)
	history := []conversation.Message{
		conversation.UserMessage("Dan Cohen, 123456789, male, 1990-05-12, Maccabi, Gold"),
		conversation.AssistantMessage("Please confirm these details."),
		conversation.UserMessage("Yes, that's correct"),
	}
	state := conversation.NewTurnState(history, nil)

	result, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []State{StateCollect, StateCollectTool, StateQA}, result.Trace)
	assert.Equal(t, 3, result.Steps)
	assert.True(t, result.ProfileResolved)
	require.NotNil(t, result.State.Profile)
	assert.Equal(t, "Gold", result.State.Profile.InsuranceTier)
	assert.Equal(t, conversation.PhaseQA, result.State.Phase())

	added := result.Added()
	require.Len(t, added, 3)
	assert.Equal(t, conversation.RoleTool, added[1].Role)
	assert.Equal(t, "call_1", added[1].ToolCallID)
	assert.Equal(t, ProfileCollectedMessage, added[1].Content)
	assert.False(t, added[1].Failed)

	collector.AssertExpectations(t)
	qa.AssertExpectations(t)
	caps.AssertExpectations(t)
}

func TestExecutor_FailedExtractionLeavesProfileUnset(t *testing.T) {
	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	collector.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.ExtractProfile, "call_1", nil), nil).Once()
	caps.On("ExtractProfile", mock.Anything, mock.Anything).
		Return(conversation.Profile{}, &capability.ExtractionError{Err: errors.New("invalid JSON")}).Once()
	qa.On("Act", mock.Anything, mock.Anything).
		Return(reply("Sorry, could you repeat your details?"), nil).Once()

	tl := logging.NewTestLogger()
	e := NewExecutor(collector, qa, caps, WithLogger(tl.Logger))
	state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("yes")}, nil)

	result, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Nil(t, result.State.Profile)
	assert.False(t, result.ProfileResolved)
	assert.Equal(t, []State{StateCollect, StateCollectTool, StateQA}, result.Trace)

	toolMsg := result.Added()[1]
	assert.True(t, toolMsg.Failed)
	assert.Equal(t, "Error collecting user information: invalid JSON", toolMsg.Content)
	tl.AssertLogged(t, zapcore.WarnLevel, "profile extraction failed")
}

// completerFunc is an llm.Completer backed by a function.
type completerFunc func(ctx context.Context, system, user string) (string, error)

func (f completerFunc) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

func fixedPayload(payload string) completerFunc {
	return func(context.Context, string, string) (string, error) { return payload, nil }
}

func TestExecutor_MalformedExtractionPayloadDoesNotAbort(t *testing.T) {
	payloads := map[string]string{
		"blank name": `{"name":"   ","national_id":"123456789","gender":"male",
			"date_of_birth":"12/05/1990","hmo":"Maccabi","insurance_tier":"Gold"}`,
		"not json":      "I could not find the details",
		"missing field": `{"first_name":"Dan","last_name":"Cohen"}`,
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			collector := &MockActor{name: "collector"}
			qa := &MockActor{name: "qa"}
			collector.On("Act", mock.Anything, mock.Anything).
				Return(requestTool(conversation.ExtractProfile, "call_1", nil), nil).Once()
			qa.On("Act", mock.Anything, mock.Anything).
				Return(reply("Could you repeat your full name?"), nil).Once()

			provider := capability.NewProvider(fixedPayload(payload), nil)
			e := NewExecutor(collector, qa, provider)
			state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("that's all")}, nil)

			result, err := e.Run(context.Background(), state)
			require.NoError(t, err)

			assert.Nil(t, result.State.Profile)
			assert.False(t, result.ProfileResolved)
			assert.Equal(t, []State{StateCollect, StateCollectTool, StateQA}, result.Trace)

			toolMsg := result.Added()[1]
			assert.True(t, toolMsg.Failed)
			assert.True(t, strings.HasPrefix(toolMsg.Content, "Error collecting user information: "), toolMsg.Content)
		})
	}
}

func TestExecutor_ProfileResolvedCountedOncePerRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector("test", reg, zap.NewNop())

	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	collector.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.ExtractProfile, "call_1", nil), nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).
		Return(reply("Thanks Dan!"), nil).Once()

	payload := `{"first_name":"Dan","last_name":"Cohen","national_id":"123456789","gender":"male",
		"date_of_birth":"12/05/1990","hmo":"Maccabi","insurance_tier":"Gold"}`
	provider := capability.NewProvider(fixedPayload(payload), nil, capability.WithMetrics(m))
	e := NewExecutor(collector, qa, provider, WithMetrics(m))
	state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("yes")}, nil)

	result, err := e.Run(context.Background(), state)
	require.NoError(t, err)
	require.True(t, result.ProfileResolved)

	expected := `
# HELP test_profiles_resolved_total Total number of runs that resolved a profile
# TYPE test_profiles_resolved_total counter
test_profiles_resolved_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "test_profiles_resolved_total"))
}

func TestExecutor_QASearchFormatsExcerpts(t *testing.T) {
	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	profile := danCohen()
	qa.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.SearchKnowledge, "call_q", map[string]any{"question": "dental cleaning discount"}), nil).Once()
	caps.On("SearchKnowledge", mock.Anything, "dental cleaning discount", 3, map[string]string(nil)).
		Return([]capability.Excerpt{
			{Content: "Gold: 70% discount on dental cleaning", Score: 0.9},
			{Content: "Silver: 50% discount", Score: 0.8},
			{Content: "Bronze: 30% discount", Score: 0.7},
			{Content: "never shown", Score: 0.1},
		}, nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).
		Return(reply("As a Gold member you get 70% off dental cleaning."), nil).Once()

	e := NewExecutor(collector, qa, caps)
	state := conversation.NewTurnState([]conversation.Message{
		conversation.UserMessage("What discount do I get on dental cleaning?"),
	}, &profile)

	result, err := e.Run(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []State{StateQA, StateQATool, StateQA}, result.Trace)
	toolMsg := result.Added()[1]
	assert.Equal(t,
		"Result 1:\nGold: 70% discount on dental cleaning\n\nResult 2:\nSilver: 50% discount\n\nResult 3:\nBronze: 30% discount\n",
		toolMsg.Content)
	assert.NotContains(t, toolMsg.Content, "never shown")

	text, ok := result.Reply()
	require.True(t, ok)
	assert.Contains(t, text, "70%")

	collector.AssertNotCalled(t, "Act", mock.Anything, mock.Anything)
	caps.AssertExpectations(t)
}

func TestExecutor_EmptySearchUsesSentinel(t *testing.T) {
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	qa.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.SearchKnowledge, "call_q", map[string]any{"question": "parking"}), nil).Once()
	caps.On("SearchKnowledge", mock.Anything, "parking", 3, mock.Anything).Return(nil, nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).Return(reply("I could not find that."), nil).Once()

	profile := danCohen()
	e := NewExecutor(&MockActor{name: "collector"}, qa, caps)
	result, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("parking?")}, &profile))
	require.NoError(t, err)

	toolMsg := result.Added()[1]
	assert.Equal(t, NoResultsMessage, toolMsg.Content)
	assert.False(t, toolMsg.Failed)
}

func TestExecutor_SearchFailuresBecomeToolErrors(t *testing.T) {
	tests := []struct {
		name    string
		request conversation.Message
		search  error
		want    string
	}{
		{
			name:    "search error",
			request: requestTool(conversation.SearchKnowledge, "c1", map[string]any{"question": "q"}),
			search:  errors.New("index offline"),
			want:    "Error searching for information: index offline",
		},
		{
			name:    "missing question",
			request: requestTool(conversation.SearchKnowledge, "c1", map[string]any{}),
			want:    "Error searching for information: missing question argument",
		},
		{
			name:    "wrong capability",
			request: requestTool(conversation.ExtractProfile, "c1", nil),
			want:    `Error searching for information: unsupported capability "ExtractProfile"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qa := &MockActor{name: "qa"}
			caps := &MockCapabilities{}
			qa.On("Act", mock.Anything, mock.Anything).Return(tt.request, nil).Once()
			qa.On("Act", mock.Anything, mock.Anything).Return(reply("sorry"), nil).Once()
			if tt.search != nil {
				caps.On("SearchKnowledge", mock.Anything, "q", 3, mock.Anything).Return(nil, tt.search).Once()
			}

			profile := danCohen()
			e := NewExecutor(&MockActor{name: "collector"}, qa, caps)
			result, err := e.Run(context.Background(),
				conversation.NewTurnState([]conversation.Message{conversation.UserMessage("q")}, &profile))
			require.NoError(t, err)

			toolMsg := result.Added()[1]
			assert.True(t, toolMsg.Failed)
			assert.Equal(t, tt.want, toolMsg.Content)
			caps.AssertExpectations(t)
		})
	}
}

func TestExecutor_FilterByHMO(t *testing.T) {
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	qa.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.SearchKnowledge, "c1", map[string]any{"question": "optometry"}), nil).Once()
	caps.On("SearchKnowledge", mock.Anything, "optometry", 5, map[string]string{"hmo": "maccabi"}).
		Return([]capability.Excerpt{{Content: "Maccabi optometry"}}, nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).Return(reply("ok"), nil).Once()

	profile := danCohen()
	e := NewExecutor(&MockActor{name: "collector"}, qa, caps,
		WithConfig(Config{SearchK: 5, FilterByHMO: true}))
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("optometry?")}, &profile))
	require.NoError(t, err)
	caps.AssertExpectations(t)
}

func TestExecutor_StepLimit(t *testing.T) {
	loop := actorFunc(func(context.Context, *conversation.TurnState) (conversation.Message, error) {
		return requestTool(conversation.SearchKnowledge, "", map[string]any{"question": "again"}), nil
	})
	caps := &MockCapabilities{}
	caps.On("SearchKnowledge", mock.Anything, "again", 3, mock.Anything).Return(nil, nil)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())

	profile := danCohen()
	e := NewExecutor(loop, loop, caps, WithConfig(Config{MaxSteps: 7}), WithMetrics(collector))
	state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("loop")}, &profile)

	result, err := e.Run(context.Background(), state)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrStepLimitExceeded)

	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, 7, abort.Steps)
	assert.Equal(t, "step_limit", abort.Reason())

	// one user message plus seven node outputs
	assert.Len(t, state.Messages, 8)

	n, err := testutil.GatherAndCount(reg, "test_dialogue_aborts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExecutor_DefaultStepLimit(t *testing.T) {
	e := NewExecutor(&MockActor{}, &MockActor{}, &MockCapabilities{})
	assert.Equal(t, DefaultMaxSteps, e.MaxSteps())
}

func TestExecutor_AgentErrorAborts(t *testing.T) {
	collector := &MockActor{name: "collector"}
	collector.On("Act", mock.Anything, mock.Anything).
		Return(conversation.Message{}, errors.New("model unavailable")).Once()

	e := NewExecutor(collector, &MockActor{name: "qa"}, &MockCapabilities{})
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("hi")}, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAgentFailed)
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateCollect, abort.State)
	assert.Equal(t, 1, abort.Steps)
}

func TestExecutor_PanicIsRecovered(t *testing.T) {
	boom := actorFunc(func(context.Context, *conversation.TurnState) (conversation.Message, error) {
		panic("nil map write")
	})

	tl := logging.NewTestLogger()
	e := NewExecutor(boom, boom, &MockCapabilities{}, WithLogger(tl.Logger))
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("hi")}, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodePanic)
	tl.AssertLogged(t, zapcore.ErrorLevel, "node panicked")
}

func TestExecutor_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collector := &MockActor{name: "collector"}
	e := NewExecutor(collector, &MockActor{}, &MockCapabilities{})
	_, err := e.Run(ctx, conversation.NewTurnState([]conversation.Message{conversation.UserMessage("hi")}, nil))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	collector.AssertNotCalled(t, "Act", mock.Anything, mock.Anything)
}

func TestExecutor_EmptyState(t *testing.T) {
	e := NewExecutor(&MockActor{}, &MockActor{}, &MockCapabilities{})

	_, err := e.Run(context.Background(), conversation.NewTurnState(nil, nil))
	assert.ErrorIs(t, err, ErrEmptyTurnState)

	_, err = e.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyTurnState)
}

func TestExecutor_DuplicateCallIDIsReplaced(t *testing.T) {
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	qa.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.SearchKnowledge, "call_1", map[string]any{"question": "q"}), nil).Once()
	caps.On("SearchKnowledge", mock.Anything, "q", 3, mock.Anything).Return(nil, nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).Return(reply("done"), nil).Once()

	history := []conversation.Message{
		requestTool(conversation.ExtractProfile, "call_1", nil),
		conversation.ToolResult("call_1", ProfileCollectedMessage, false),
		conversation.UserMessage("q"),
	}
	profile := danCohen()
	e := NewExecutor(&MockActor{}, qa, caps)
	result, err := e.Run(context.Background(), conversation.NewTurnState(history, &profile))
	require.NoError(t, err)

	added := result.Added()
	require.NotNil(t, added[0].ToolRequest)
	assert.NotEqual(t, "call_1", added[0].ToolRequest.CallID)
	assert.Equal(t, added[0].ToolRequest.CallID, added[1].ToolCallID)
}

func TestExecutor_ConcurrentRuns(t *testing.T) {
	qa := actorFunc(func(_ context.Context, s *conversation.TurnState) (conversation.Message, error) {
		last, _ := s.Last()
		if last.Role == conversation.RoleTool {
			return reply("answer: " + last.Content), nil
		}
		return requestTool(conversation.SearchKnowledge, "", map[string]any{"question": last.Content}), nil
	})
	caps := &MockCapabilities{}
	caps.On("SearchKnowledge", mock.Anything, mock.Anything, 3, mock.Anything).
		Return([]capability.Excerpt{{Content: "shared"}}, nil)

	e := NewExecutor(qa, qa, caps)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			profile := danCohen()
			state := conversation.NewTurnState([]conversation.Message{conversation.UserMessage("question")}, &profile)
			result, err := e.Run(context.Background(), state)
			if err != nil {
				errs <- err
				return
			}
			if result.Steps != 3 {
				errs <- errors.New("unexpected step count")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestExecutor_LogsNoPersonalData(t *testing.T) {
	collector := &MockActor{name: "collector"}
	qa := &MockActor{name: "qa"}
	caps := &MockCapabilities{}

	collector.On("Act", mock.Anything, mock.Anything).
		Return(requestTool(conversation.ExtractProfile, "c1", nil), nil).Once()
	caps.On("ExtractProfile", mock.Anything, mock.Anything).Return(danCohen(), nil).Once()
	qa.On("Act", mock.Anything, mock.Anything).Return(reply("welcome"), nil).Once()

	tl := logging.NewTestLogger()
	e := NewExecutor(collector, qa, caps, WithLogger(tl.Logger))
	_, err := e.Run(context.Background(),
		conversation.NewTurnState([]conversation.Message{conversation.UserMessage("yes")}, nil))
	require.NoError(t, err)

	tl.AssertLogged(t, zapcore.InfoLevel, "run completed")
	tl.AssertField(t, "run completed", "profile_resolved", true)
	tl.AssertNoSecrets(t)
}
