package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/odoo-agent/internal/config"
	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStartsWithGreeting(t *testing.T) {
	s := NewStore("")
	sess := s.Create("")

	_, err := uuid.Parse(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sess.Status)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, config.DefaultAgentsGreeting, sess.Messages[0].Content)
	assert.NotEmpty(t, sess.Messages[0].ID)

	custom := s.Create("Hello from sales")
	assert.Equal(t, "Hello from sales", custom.Messages[0].Content)
	assert.Equal(t, 2, s.Len())
}

func TestHistoryExcludesSystemAndKeepsOrder(t *testing.T) {
	s := NewStore("")
	sess := s.Create("")

	require.NoError(t, s.Append(sess.ID,
		NewMessage(RoleUser, "create a lead named Acme"),
		NewMessage(RoleAssistant, "Sure.\nOperation successful: 42"),
	))
	require.NoError(t, s.Append(sess.ID, NewMessage(RoleSystem, "Session cleared.")))
	require.NoError(t, s.Append(sess.ID, Message{Role: RoleUser, Content: "thanks"}))

	history, err := s.History(sess.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []contract.Message{
		{Role: RoleUser, Content: "create a lead named Acme"},
		{Role: RoleAssistant, Content: "Sure.\nOperation successful: 42"},
		{Role: RoleUser, Content: "thanks"},
	}, history)

	limited, err := s.History(sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "thanks", limited[1].Content)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 5)
	assert.NotEmpty(t, got.Messages[4].ID)
	assert.False(t, got.Messages[4].Timestamp.IsZero())
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewStore("")
	sess := s.Create("")

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	got.Messages[0].Content = "mutated"

	again, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAgentsGreeting, again.Messages[0].Content)
}

func TestGetOrCreate(t *testing.T) {
	s := NewStore("")

	sess, created := s.GetOrCreate("client-chosen")
	assert.True(t, created)
	assert.Equal(t, "client-chosen", sess.ID)

	_, created = s.GetOrCreate("client-chosen")
	assert.False(t, created)

	fresh, created := s.GetOrCreate("")
	assert.True(t, created)
	assert.NotEqual(t, "client-chosen", fresh.ID)
}

func TestMissingSession(t *testing.T) {
	s := NewStore("")

	_, err := s.Get("nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Append("nope", NewMessage(RoleUser, "x")), apperrors.ErrNotFound)
	_, err = s.History("nope", 5)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Delete("nope"), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.Clear("nope"), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.SetStatus("nope", StatusExpired), apperrors.ErrNotFound)
}

func TestDeleteClearAndStatus(t *testing.T) {
	s := NewStore("")
	sess := s.Create("")
	require.NoError(t, s.Append(sess.ID, NewMessage(RoleUser, "hi")))

	require.NoError(t, s.Clear(sess.ID))
	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	require.NoError(t, s.SetStatus(sess.ID, StatusExpired))
	assert.ErrorIs(t, s.SetStatus(sess.ID, "archived"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, s.SetStatus(sess.ID, "closed"), apperrors.ErrInvalidInput)
	assert.Equal(t, Status("expired"), StatusExpired)
	require.NoError(t, s.SetMetadata(sess.ID, "role", "sales"))

	got, err = s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Equal(t, "sales", got.Metadata["role"])

	require.NoError(t, s.Delete(sess.ID))
	assert.Equal(t, 0, s.Len())
}

func TestListNewestFirst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore("", WithClock(func() time.Time { return now }))

	first := s.Create("")
	now = now.Add(time.Minute)
	second := s.Create("")
	now = now.Add(time.Minute)
	require.NoError(t, s.Append(first.ID, NewMessage(RoleUser, "bump")))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, 2, list[0].MessageCount)
	assert.Equal(t, second.ID, list[1].ID)
}

func TestConcurrentAppends(t *testing.T) {
	s := NewStore("")
	a := s.Create("")
	b := s.Create("")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(a.ID, NewMessage(RoleUser, fmt.Sprintf("a-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(b.ID, NewMessage(RoleUser, fmt.Sprintf("b-%d", i)))
		}(i)
	}
	wg.Wait()

	for _, id := range []string{a.ID, b.ID} {
		history, err := s.History(id, 0)
		require.NoError(t, err)
		assert.Len(t, history, 50)
	}
}
