package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
)

// decodeStrict reads exactly one JSON value from payload and rejects any
// trailing non-whitespace content.
func decodeStrict(payload string) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty payload")
		}
		return nil, err
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected content after JSON value")
	}
	return raw, nil
}

// decodeObject decodes an object keeping integers exact.
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	v, err := normalize(obj)
	if err != nil {
		return nil, err
	}
	return v.(map[string]interface{}), nil
}

// errIntegerRange marks an integer literal that does not fit in int64.
var errIntegerRange = errors.New("integer out of range")

// normalize converts json.Number leaves to int64 for integer literals and
// float64 for literals with a fraction or exponent.
func normalize(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		lit := val.String()
		if strings.ContainsAny(lit, ".eE") {
			f, err := val.Float64()
			if err != nil {
				return nil, fmt.Errorf("number %s: %w", lit, err)
			}
			return f, nil
		}
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s does not fit in a 64-bit integer", errIntegerRange, lit)
		}
		return i, nil
	case map[string]interface{}:
		for k, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			n, err := normalize(item)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	default:
		return v, nil
	}
}

// ParseDomain decodes a search domain given as a JSON array, such as
// [["is_company","=",true]]. Blank input is the empty domain.
func ParseDomain(payload string) ([]interface{}, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return []interface{}{}, nil
	}
	raw, err := decodeStrict(payload)
	if err != nil {
		return nil, apperrors.InvalidInput("domain is not valid JSON: " + err.Error())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var domain []interface{}
	if err := dec.Decode(&domain); err != nil {
		return nil, apperrors.InvalidInput("domain must be a JSON array")
	}
	if domain == nil {
		return []interface{}{}, nil
	}
	v, err := normalize(domain)
	if err != nil {
		return nil, apperrors.InvalidInput("domain: " + err.Error())
	}
	return v.([]interface{}), nil
}
