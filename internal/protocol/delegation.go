package protocol

import (
	"encoding/json"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
)

// DelegationPayload is the body of a DELEGATE_TO_<ROLE>: marker. Fields keeps
// the whole object so extra keys reach the target role untouched.
type DelegationPayload struct {
	Instruction string
	CustomerID  *int64
	Fields      map[string]interface{}
}

// Message renders the payload as the input message for the target role.
func (p DelegationPayload) Message() string {
	b, err := json.Marshal(p.Fields)
	if err != nil {
		return p.Instruction
	}
	return string(b)
}

// ParseDelegation validates a delegation payload. It requires a non-empty
// instruction; customer_id, when present, must be an integer.
func ParseDelegation(payload string) (DelegationPayload, error) {
	raw, err := decodeStrict(strings.TrimSpace(payload))
	if err != nil {
		return DelegationPayload{}, delegationError("payload is not valid JSON: " + err.Error())
	}

	problems, err := checkShape(delegationSchema, raw)
	if err != nil {
		return DelegationPayload{}, delegationError(err.Error())
	}
	if problems != "" {
		return DelegationPayload{}, delegationError(problems)
	}

	obj, err := decodeObject(raw)
	if err != nil {
		return DelegationPayload{}, delegationError(err.Error())
	}

	p := DelegationPayload{
		Instruction: strings.TrimSpace(obj["instruction"].(string)),
		Fields:      obj,
	}
	if p.Instruction == "" {
		return DelegationPayload{}, delegationError("instruction must be non-blank")
	}
	switch id := obj["customer_id"].(type) {
	case int64:
		p.CustomerID = &id
	case float64:
		whole := int64(id)
		p.CustomerID = &whole
	}
	return p, nil
}

func delegationError(detail string) error {
	return &ParseError{Kind: apperrors.ErrDelegation, Detail: detail}
}
