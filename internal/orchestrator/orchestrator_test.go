package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/odoo-agent/internal/agent"
	"github.com/harunnryd/odoo-agent/internal/config"
	"github.com/harunnryd/odoo-agent/internal/metrics"
	"github.com/harunnryd/odoo-agent/internal/model/contract"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/protocol"
	"github.com/harunnryd/odoo-agent/internal/ratelimit"
	"github.com/harunnryd/odoo-agent/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testPrompts = config.PromptsConfig{Main: "MAIN", Sales: "SALES", CRM: "CRM"}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system string, history []contract.Message) (string, error) {
	args := m.Called(ctx, system, history)
	return args.String(0), args.Error(1)
}

type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, cmd protocol.Command) odoo.ExecutionResult {
	return m.Called(ctx, cmd).Get(0).(odoo.ExecutionResult)
}

type fixture struct {
	gen      *MockGenerator
	invoker  *MockInvoker
	sessions *session.Store
	orch     *Orchestrator
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, limiter ratelimit.Limiter, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		gen:      new(MockGenerator),
		invoker:  new(MockInvoker),
		sessions: session.NewStore(""),
		metrics:  metrics.MustNew(prometheus.NewRegistry()),
	}
	opts = append([]Option{WithMetrics(f.metrics)}, opts...)
	f.orch = New(f.sessions, agent.NewRegistry(testPrompts, f.gen), f.invoker, limiter, opts...)
	return f
}

func system(prompt string) interface{} {
	return mock.MatchedBy(func(s string) bool { return s == prompt })
}

func TestHandleExecutesEmbeddedCommand(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, system("MAIN"), []contract.Message{{Role: "user", Content: "create a lead named Acme"}}).
		Return("Sure.\nDATABASE_OPERATION:{\"model\":\"crm.lead\",\"method\":\"create\",\"args\":[{\"name\":\"Acme\"}]}", nil)
	f.invoker.On("Invoke", mock.Anything, mock.MatchedBy(func(cmd protocol.Command) bool {
		values, _ := cmd.Args[0].(map[string]interface{})
		return cmd.Model == "crm.lead" && cmd.Method == "create" && len(cmd.Args) == 1 && values["name"] == "Acme"
	})).Return(odoo.ExecutionResult{Success: true, Result: int64(42), Attempts: 1})

	resp := f.orch.Handle(context.Background(), Request{Message: "create a lead named Acme", ClientID: "127.0.0.1:abcde"})

	assert.Equal(t, "Sure.\nOperation successful: 42", resp.Text)
	assert.Equal(t, OutcomeOK, resp.Outcome)
	assert.Equal(t, "main", resp.Role)
	assert.NotEmpty(t, resp.TraceID)
	require.NotNil(t, resp.Command)
	assert.Equal(t, "crm.lead", resp.Command.Model)
	assert.True(t, resp.Command.Success)

	sess, err := f.sessions.Get(resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, session.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, "create a lead named Acme", sess.Messages[1].Content)
	assert.Equal(t, "Sure.\nOperation successful: 42", sess.Messages[2].Content)
}

func TestHandleDelegatesOneLevel(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, system("MAIN"), mock.Anything).
		Return("Handing over to sales.\nDELEGATE_TO_SALES_AGENT:{\"instruction\":\"email customer\",\"customer_id\":42}", nil).Once()
	f.gen.On("Generate", mock.Anything, system("SALES"), mock.MatchedBy(func(h []contract.Message) bool {
		return len(h) == 1 && h[0].Role == "user" &&
			h[0].Content == `{"customer_id":42,"instruction":"email customer"}`
	})).Return(`Email sent. DELEGATE_TO_CRM_AGENT:{"instruction":"log activity"}`, nil).Once()

	resp := f.orch.Handle(context.Background(), Request{Message: "follow up with customer 42"})

	assert.Equal(t, OutcomeOK, resp.Outcome)
	assert.True(t, resp.Delegated)
	assert.Equal(t, "sales", resp.DelegatedTo)
	assert.Equal(t, "Handing over to sales.\nEmail sent. DELEGATE_TO_CRM_AGENT:{\"instruction\":\"log activity\"}", resp.Text)
	f.gen.AssertNumberOfCalls(t, "Generate", 2)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, system("CRM"), mock.Anything)

	history, err := f.sessions.History(resp.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleDelegatedCommandIsExecuted(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, system("MAIN"), mock.Anything).
		Return(`DELEGATE_TO_CRM_AGENT:{"instruction":"create lead Acme"}`, nil)
	f.gen.On("Generate", mock.Anything, system("CRM"), mock.Anything).
		Return("Creating it.\nDATABASE_OPERATION:{\"model\":\"crm.lead\",\"method\":\"create\",\"args\":[{\"name\":\"Acme\"}]}", nil)
	f.invoker.On("Invoke", mock.Anything, mock.Anything).Return(odoo.ExecutionResult{Success: true, Result: int64(7)})

	resp := f.orch.Handle(context.Background(), Request{Message: "new lead"})

	assert.Equal(t, "Creating it.\nOperation successful: 7", resp.Text)
	assert.Equal(t, "crm", resp.DelegatedTo)
	f.invoker.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestHandleIllegalDelegation(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, system("SALES"), mock.Anything).
		Return("Let me check.\nDELEGATE_TO_MAIN_AGENT:{\"instruction\":\"x\"}", nil)

	resp := f.orch.Handle(context.Background(), Request{Message: "hi", Role: "sales"})

	assert.Equal(t, OutcomeDelegationFailed, resp.Outcome)
	assert.Equal(t, "Let me check.\nDelegation failed: sales agent cannot delegate to main agent", resp.Text)
	f.gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestHandleCommandAnnotations(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		outcome Outcome
		text    string
	}{
		{
			name:    "parse error",
			reply:   "Okay DATABASE_OPERATION: is what I would use",
			outcome: OutcomeCommandParseError,
			text:    "Okay\nCould not parse database operation: ",
		},
		{
			name:    "malformed",
			reply:   "Okay\nDATABASE_OPERATION:{\"model\":\"crm.lead\"}",
			outcome: OutcomeMalformedCommand,
			text:    "Okay\nInvalid database operation: ",
		},
		{
			name:    "custom without name",
			reply:   "DATABASE_OPERATION:{\"model\":\"sale.order\",\"method\":\"custom\"}",
			outcome: OutcomeMalformedCommand,
			text:    "Invalid database operation: ",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tc.reply, nil)

			resp := f.orch.Handle(context.Background(), Request{Message: "do it"})

			assert.Equal(t, tc.outcome, resp.Outcome)
			assert.Contains(t, resp.Text, tc.text)
			assert.Nil(t, resp.Command)
			f.invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleCommandFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("Sure.\nDATABASE_OPERATION:{\"model\":\"crm.lead\",\"method\":\"create\",\"args\":[{}]}", nil)
	f.invoker.On("Invoke", mock.Anything, mock.Anything).Return(odoo.ExecutionResult{
		Success:  false,
		Error:    "Validation Error: The lead name is required",
		Category: "remote_validation",
		Attempts: 1,
	})

	resp := f.orch.Handle(context.Background(), Request{Message: "create lead"})

	assert.Equal(t, OutcomeCommandFailed, resp.Outcome)
	assert.Equal(t, "Sure.\nOperation failed: Validation Error: The lead name is required", resp.Text)
	require.NotNil(t, resp.Command)
	assert.Equal(t, "remote_validation", resp.Command.Category)
}

func TestHandleRateLimitedBeforeModelCall(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter, err := ratelimit.NewFixedWindow(1, time.Minute, ratelimit.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	f := newFixture(t, limiter)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Hello.", nil)

	first := f.orch.Handle(context.Background(), Request{Message: "hi", ClientID: "10.0.0.1:abcde"})
	require.Equal(t, OutcomeOK, first.Outcome)

	now = now.Add(20 * time.Second)
	second := f.orch.Handle(context.Background(), Request{SessionID: first.SessionID, Message: "again", ClientID: "10.0.0.1:abcde"})

	assert.Equal(t, OutcomeRateLimited, second.Outcome)
	assert.Equal(t, 40, second.RetryAfterSecs)
	assert.Contains(t, second.Text, "Rate limit exceeded")
	f.gen.AssertNumberOfCalls(t, "Generate", 1)

	history, err := f.sessions.History(first.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	other := f.orch.Handle(context.Background(), Request{Message: "hi", ClientID: "10.0.0.2:abcde"})
	assert.Equal(t, OutcomeOK, other.Outcome)
}

func TestHandleRateLimitedBeforeInvoke(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter, err := ratelimit.NewFixedWindow(1, time.Minute, ratelimit.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	f := newFixture(t, limiter)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("Sure.\nDATABASE_OPERATION:{\"model\":\"res.partner\",\"method\":\"search\"}", nil)

	resp := f.orch.Handle(context.Background(), Request{Message: "find partners", ClientID: "c"})

	assert.Equal(t, OutcomeRateLimited, resp.Outcome)
	assert.Contains(t, resp.Text, "Sure.\nOperation failed: Rate limit exceeded")
	f.invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)

	history, err := f.sessions.History(resp.SessionID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleModelError(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("upstream 503"))

	resp := f.orch.Handle(context.Background(), Request{Message: "hi"})

	assert.Equal(t, OutcomeModelError, resp.Outcome)
	assert.NotEmpty(t, resp.Text)
	assert.NotContains(t, resp.Text, "503")
}

func TestHandleInvalidInput(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.orch.Handle(context.Background(), Request{Message: "   "})
	assert.Equal(t, OutcomeInvalidInput, resp.Outcome)
	assert.Equal(t, 0, f.sessions.Len())

	resp = f.orch.Handle(context.Background(), Request{Message: "hi", Role: "support"})
	assert.Equal(t, OutcomeInvalidInput, resp.Outcome)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)

	history, err := f.sessions.History(resp.SessionID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHandleSlashCommandsStayLocal(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.On("Generate", mock.Anything, system("CRM"), mock.Anything).Return("CRM here.", nil)

	first := f.orch.Handle(context.Background(), Request{Message: "/role crm"})
	assert.Equal(t, OutcomeOK, first.Outcome)
	assert.Equal(t, "Role set to crm", first.Text)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)

	second := f.orch.Handle(context.Background(), Request{SessionID: first.SessionID, Message: "hello", IncludeHistory: true})
	assert.Equal(t, "crm", second.Role)
	assert.Equal(t, "CRM here.", second.Text)
	require.NotEmpty(t, second.History)
	assert.Equal(t, "CRM here.", second.History[len(second.History)-1].Content)
}

func TestHandleBoundsHistory(t *testing.T) {
	f := newFixture(t, nil, WithHistoryLimit(2))
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(h []contract.Message) bool {
		return len(h) <= 3
	})).Return("ok", nil)

	resp := f.orch.Handle(context.Background(), Request{Message: "one"})
	for _, msg := range []string{"two", "three", "four"} {
		resp = f.orch.Handle(context.Background(), Request{SessionID: resp.SessionID, Message: msg})
		require.Equal(t, OutcomeOK, resp.Outcome)
	}

	last := f.gen.Calls[len(f.gen.Calls)-1].Arguments.Get(2).([]contract.Message)
	require.Len(t, last, 3)
	assert.Equal(t, "three", last[0].Content)
	assert.Equal(t, "four", last[2].Content)
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "42", formatResult(int64(42)))
	assert.Equal(t, "3", formatResult(float64(3)))
	assert.Equal(t, "2.5", formatResult(2.5))
	assert.Equal(t, "true", formatResult(true))
	assert.Equal(t, "done", formatResult(nil))
	assert.Equal(t, `[{"id":1,"name":"Acme"}]`, formatResult([]interface{}{map[string]interface{}{"id": int64(1), "name": "Acme"}}))
}
