package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, system string, history []contract.Message) (string, error) {
	args := m.Called(ctx, system, history)
	return args.String(0), args.Error(1)
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": Main, "main": Main, " Sales ": Sales, "CRM": CRM} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("support")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, []string{"crm", "main", "sales"}, KindNames())
}

func TestTokens(t *testing.T) {
	assert.Equal(t, "SALES_AGENT", Sales.Token())
	k, ok := KindFromToken("CRM_AGENT")
	assert.True(t, ok)
	assert.Equal(t, CRM, k)
	_, ok = KindFromToken("SUPPORT_AGENT")
	assert.False(t, ok)
}

func TestDelegationTargets(t *testing.T) {
	assert.True(t, Main.CanDelegateTo(Sales))
	assert.True(t, Main.CanDelegateTo(CRM))
	assert.True(t, CRM.CanDelegateTo(Sales))
	assert.False(t, CRM.CanDelegateTo(Main))
	assert.False(t, Sales.CanDelegateTo(CRM))
	assert.False(t, Main.CanDelegateTo(Main))
	assert.Empty(t, Sales.Targets())
}

func TestRegistryUsesConfiguredPrompts(t *testing.T) {
	gen := new(MockGenerator)
	reg := NewRegistry(config.PromptsConfig{Sales: "You sell."}, gen)

	sales, err := reg.Get(Sales)
	require.NoError(t, err)
	assert.Equal(t, "You sell.", sales.Prompt())

	main, err := reg.Get(Main)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultMainPrompt, main.Prompt())

	_, err = reg.Get("support")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRoleGenerateSendsPromptAndHistory(t *testing.T) {
	history := []contract.Message{{Role: contract.RoleUser, Content: "hi"}}
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, "You sell.", history).Return("Hello!", nil).Once()
	gen.On("Generate", mock.Anything, "You sell.", mock.Anything).Return("", errors.New("quota")).Once()

	role := NewRole(Sales, "You sell.", gen)
	text, err := role.Generate(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", text)

	_, err = role.Generate(context.Background(), history)
	assert.Error(t, err)
	gen.AssertExpectations(t)
}
