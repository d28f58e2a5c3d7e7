package protocol

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
)

// Well-known remote methods. Any other non-empty name is accepted as well;
// the remote store decides whether it exists.
const (
	MethodSearch     = "search"
	MethodSearchRead = "search_read"
	MethodRead       = "read"
	MethodCreate     = "create"
	MethodWrite      = "write"
	MethodUnlink     = "unlink"
	MethodCustom     = "custom"
)

var knownMethods = map[string]struct{}{
	MethodSearch: {}, MethodSearchRead: {}, MethodRead: {}, MethodCreate: {},
	MethodWrite: {}, MethodUnlink: {}, MethodCustom: {},
}

// Command is a validated remote-store invocation.
type Command struct {
	Model        string                 `json:"model"`
	Method       string                 `json:"method"`
	Args         []interface{}          `json:"args"`
	Kwargs       map[string]interface{} `json:"kwargs"`
	CustomMethod string                 `json:"custom_method,omitempty"`
}

// RemoteMethod is the method name sent over the wire.
func (c Command) RemoteMethod() string {
	if c.Method == MethodCustom {
		return c.CustomMethod
	}
	return c.Method
}

// IsKnownMethod reports whether the method is one of the enumerated names.
func (c Command) IsKnownMethod() bool {
	_, ok := knownMethods[c.Method]
	return ok
}

func (c Command) String() string {
	return fmt.Sprintf("%s.%s", c.Model, c.RemoteMethod())
}

// ParseError reports why a marker payload was rejected. Kind is the
// category sentinel: ErrCommandParse, ErrMalformedCommand or ErrDelegation.
type ParseError struct {
	Kind   error
	Detail string
}

func (e *ParseError) Error() string {
	return e.Detail
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func parseError(detail string) error {
	return &ParseError{Kind: apperrors.ErrCommandParse, Detail: detail}
}

func malformed(detail string) error {
	return &ParseError{Kind: apperrors.ErrMalformedCommand, Detail: detail}
}

// Validate parses a command payload. A payload that is not a single JSON
// value fails with errors.ErrCommandParse; a JSON value of the wrong shape
// fails with errors.ErrMalformedCommand. Unknown top-level keys are ignored.
func Validate(payload string) (Command, error) {
	raw, err := decodeStrict(strings.TrimSpace(payload))
	if err != nil {
		return Command{}, parseError(err.Error())
	}

	problems, err := checkShape(commandSchema, raw)
	if err != nil {
		return Command{}, parseError(err.Error())
	}
	if problems != "" {
		return Command{}, malformed(problems)
	}

	obj, err := decodeObject(raw)
	if err != nil {
		if errors.Is(err, errIntegerRange) {
			return Command{}, malformed(err.Error())
		}
		return Command{}, parseError(err.Error())
	}

	cmd := Command{
		Model:  strings.TrimSpace(obj["model"].(string)),
		Method: strings.TrimSpace(obj["method"].(string)),
		Args:   []interface{}{},
		Kwargs: map[string]interface{}{},
	}
	if cmd.Model == "" || cmd.Method == "" {
		return Command{}, malformed("model and method must be non-blank")
	}
	if args, ok := obj["args"].([]interface{}); ok {
		cmd.Args = args
	}
	if kwargs, ok := obj["kwargs"].(map[string]interface{}); ok {
		cmd.Kwargs = kwargs
	}
	if custom, ok := obj["custom_method"].(string); ok {
		cmd.CustomMethod = strings.TrimSpace(custom)
	}

	if cmd.Method == MethodCustom && cmd.CustomMethod == "" {
		return Command{}, malformed("method custom requires a non-empty custom_method")
	}
	if cmd.Method != MethodCustom {
		cmd.CustomMethod = ""
	}

	return cmd, nil
}
