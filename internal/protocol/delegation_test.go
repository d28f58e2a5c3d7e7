package protocol

import (
	"encoding/json"
	"testing"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDelegation(t *testing.T) {
	p, err := ParseDelegation(`{"instruction":"email customer","customer_id":42,"priority":"high"}`)
	require.NoError(t, err)

	assert.Equal(t, "email customer", p.Instruction)
	require.NotNil(t, p.CustomerID)
	assert.Equal(t, int64(42), *p.CustomerID)

	var forwarded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(p.Message()), &forwarded))
	assert.Equal(t, "high", forwarded["priority"])
	assert.Equal(t, float64(42), forwarded["customer_id"])
}

func TestParseDelegationWithoutCustomer(t *testing.T) {
	p, err := ParseDelegation(`{"instruction":"summarize pipeline"}`)
	require.NoError(t, err)
	assert.Nil(t, p.CustomerID)
}

func TestParseDelegationRejectsBadPayloads(t *testing.T) {
	payloads := []string{
		``,
		`not json`,
		`{"customer_id":42}`,
		`{"instruction":""}`,
		`{"instruction":"  "}`,
		`{"instruction":"x","customer_id":"42"}`,
		`{"instruction":"x","customer_id":4.5}`,
		`{"instruction":"x"} trailing`,
	}
	for _, payload := range payloads {
		_, err := ParseDelegation(payload)
		assert.ErrorIs(t, err, apperrors.ErrDelegation, payload)
	}
}
