package protocol

import (
	"encoding/json"
	"testing"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateWellFormedCommand(t *testing.T) {
	cmd, err := Validate(`{"model":"crm.lead","method":"create","args":[{"name":"Acme","probability":12.5,"user_id":7}]}`)
	require.NoError(t, err)

	assert.Equal(t, "crm.lead", cmd.Model)
	assert.Equal(t, "create", cmd.Method)
	assert.Equal(t, "create", cmd.RemoteMethod())
	assert.True(t, cmd.IsKnownMethod())
	require.Len(t, cmd.Args, 1)

	values := cmd.Args[0].(map[string]interface{})
	assert.Equal(t, int64(7), values["user_id"])
	assert.Equal(t, 12.5, values["probability"])
	assert.Equal(t, map[string]interface{}{}, cmd.Kwargs)
}

func TestValidateDefaultsArgsAndKwargs(t *testing.T) {
	cmd, err := Validate(`{"model":"res.partner","method":"search_count"}`)
	require.NoError(t, err)
	assert.NotNil(t, cmd.Args)
	assert.Empty(t, cmd.Args)
	assert.NotNil(t, cmd.Kwargs)
	assert.False(t, cmd.IsKnownMethod())
}

func TestValidateRoundTrip(t *testing.T) {
	payloads := []string{
		`{"model":"res.partner","method":"search_read","args":[[["is_company","=",true]]],"kwargs":{"fields":["name","email"],"limit":5}}`,
		`{"model":"crm.lead","method":"write","args":[[3,4],{"stage_id":2,"tag_ids":[[6,0,[1,2]]]}],"kwargs":{}}`,
		`{"model":"sale.order","method":"unlink","args":[[11]],"kwargs":{"context":{"lang":"en_US"}}}`,
		`{"model":"res.partner","method":"read","args":[[9223372036854775807],1.0,1e2,-2.5],"kwargs":{}}`,
	}

	for _, payload := range payloads {
		cmd, err := Validate(payload)
		require.NoError(t, err, payload)

		encoded, err := json.Marshal(cmd)
		require.NoError(t, err)

		var want, got map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(payload), &want))
		require.NoError(t, json.Unmarshal(encoded, &got))
		assert.Equal(t, want, got)
	}
}

func TestValidateKeepsLargeIntegersExact(t *testing.T) {
	cmd, err := Validate(`{"model":"res.partner","method":"read","args":[9007199254740993, 1.0, 1e2]}`)
	require.NoError(t, err)

	assert.Equal(t, []interface{}{int64(9007199254740993), float64(1), float64(100)}, cmd.Args)
	encoded, err := json.Marshal(cmd.Args)
	require.NoError(t, err)
	assert.Equal(t, `[9007199254740993,1,100]`, string(encoded))
}

func TestValidateRejectsIntegersOutOfRange(t *testing.T) {
	payloads := []string{
		`{"model":"res.partner","method":"read","args":[12345678901234567891]}`,
		`{"model":"res.partner","method":"read","args":[[-9223372036854775809]]}`,
		`{"model":"res.partner","method":"search_read","kwargs":{"limit":99999999999999999999}}`,
	}
	for _, payload := range payloads {
		_, err := Validate(payload)
		assert.ErrorIs(t, err, apperrors.ErrMalformedCommand, payload)
		assert.Contains(t, err.Error(), "64-bit integer", payload)
	}
}

func TestValidateCustomMethod(t *testing.T) {
	_, err := Validate(`{"model":"sale.order","method":"custom","custom_method":""}`)
	assert.ErrorIs(t, err, apperrors.ErrMalformedCommand)

	_, err = Validate(`{"model":"sale.order","method":"custom"}`)
	assert.ErrorIs(t, err, apperrors.ErrMalformedCommand)

	cmd, err := Validate(`{"model":"sale.order","method":"custom","custom_method":"action_confirm","args":[[5]]}`)
	require.NoError(t, err)
	assert.Equal(t, "action_confirm", cmd.RemoteMethod())

	cmd, err = Validate(`{"model":"sale.order","method":"read","custom_method":"ignored"}`)
	require.NoError(t, err)
	assert.Empty(t, cmd.CustomMethod)
	assert.Equal(t, "read", cmd.RemoteMethod())
}

func TestValidateParseErrors(t *testing.T) {
	payloads := []string{
		"",
		"to do that",
		`{"model":"crm.lead","method":"create"`,
		`{"model":"crm.lead","method":"create"} and then some prose`,
		`{"model":"a","method":"read"} {"model":"b","method":"read"}`,
	}
	for _, payload := range payloads {
		_, err := Validate(payload)
		assert.ErrorIs(t, err, apperrors.ErrCommandParse, payload)
	}
}

func TestValidateAllowsTrailingWhitespace(t *testing.T) {
	_, err := Validate("{\"model\":\"a\",\"method\":\"read\"}  \n\t")
	assert.NoError(t, err)
}

func TestValidateMalformedCommands(t *testing.T) {
	payloads := []string{
		`[]`,
		`"crm.lead"`,
		`{"method":"create"}`,
		`{"model":"crm.lead"}`,
		`{"model":"","method":"create"}`,
		`{"model":"crm.lead","method":""}`,
		`{"model":"   ","method":"create"}`,
		`{"model":5,"method":"create"}`,
		`{"model":"crm.lead","method":"create","args":{"name":"x"}}`,
		`{"model":"crm.lead","method":"create","kwargs":[1]}`,
	}
	for _, payload := range payloads {
		_, err := Validate(payload)
		assert.ErrorIs(t, err, apperrors.ErrMalformedCommand, payload)
	}
}

func TestValidateIgnoresUnknownKeys(t *testing.T) {
	cmd, err := Validate(`{"model":"crm.lead","method":"read","args":[[1]],"reason":"user asked"}`)
	require.NoError(t, err)
	assert.Equal(t, "crm.lead.read", cmd.String())
}

func TestValidateReportsParseErrorDetail(t *testing.T) {
	_, err := Validate(`{"model":"crm.lead"} trailing`)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "unexpected content after JSON value", perr.Error())
	assert.ErrorIs(t, perr.Kind, apperrors.ErrCommandParse)

	_, err = Validate(`{"model":"crm.lead","method":"custom"}`)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, apperrors.ErrMalformedCommand, perr.Kind)
	assert.Contains(t, perr.Error(), "custom_method")
}

func TestParseDomain(t *testing.T) {
	domain, err := ParseDomain(`[["is_company","=",true],["id",">",9007199254740993]]`)
	require.NoError(t, err)
	require.Len(t, domain, 2)
	assert.Equal(t, []interface{}{"id", ">", int64(9007199254740993)}, domain[1])

	for _, empty := range []string{"", "  ", "[]", "null"} {
		domain, err := ParseDomain(empty)
		require.NoError(t, err, empty)
		assert.NotNil(t, domain, empty)
		assert.Empty(t, domain, empty)
	}

	for _, bad := range []string{`[["name"`, `{"name":"x"}`, `[1] [2]`, `[[ "id", "=", 12345678901234567891 ]]`} {
		_, err := ParseDomain(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}
