package odoo

import (
	"context"
	"fmt"
	"sort"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/protocol"
)

// ModelInfo describes one entry of ir.model.
type ModelInfo struct {
	Model       string `json:"model"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Transient   bool   `json:"transient"`
}

// SearchOptions are the optional keyword arguments of search_read.
type SearchOptions struct {
	Fields []string
	Limit  int
	Offset int
	Order  string
}

func (c *Client) call(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	res := c.Invoke(ctx, protocol.Command{Model: model, Method: method, Args: args, Kwargs: kwargs})
	if !res.Success {
		return nil, res.Err()
	}
	return res.Result, nil
}

// Version returns the server version information without authenticating.
func (c *Client) Version(ctx context.Context) (map[string]interface{}, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	v, err := c.transport.Version(callCtx)
	if err != nil {
		return nil, Classify(err)
	}
	return v, nil
}

// ListModels returns installed models, optionally filtered by technical name.
func (c *Client) ListModels(ctx context.Context, nameFilter string) ([]ModelInfo, error) {
	domain := []interface{}{}
	if nameFilter != "" {
		domain = append(domain, []interface{}{"model", "ilike", nameFilter})
	}

	raw, err := c.call(ctx, "ir.model", protocol.MethodSearchRead, []interface{}{domain}, map[string]interface{}{
		"fields": []interface{}{"name", "model", "info", "transient"},
		"order":  "model",
	})
	if err != nil {
		return nil, err
	}

	rows, ok := raw.([]interface{})
	if !ok {
		return nil, apperrors.Internal(fmt.Sprintf("unexpected ir.model reply %T", raw))
	}

	models := make([]ModelInfo, 0, len(rows))
	for _, row := range rows {
		rec, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		info := ModelInfo{
			Model: stringField(rec, "model"),
			Name:  stringField(rec, "name"),
		}
		info.Description = stringField(rec, "info")
		info.Transient, _ = rec["transient"].(bool)
		models = append(models, info)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Model < models[j].Model })
	return models, nil
}

// ModelFields returns fields_get for model keyed by field name.
func (c *Client) ModelFields(ctx context.Context, model string) (map[string]interface{}, error) {
	raw, err := c.call(ctx, model, "fields_get", []interface{}{}, map[string]interface{}{
		"attributes": []interface{}{"string", "type", "required", "readonly", "relation"},
	})
	if err != nil {
		return nil, err
	}
	fields, ok := raw.(map[string]interface{})
	if !ok {
		return nil, apperrors.Internal(fmt.Sprintf("unexpected fields_get reply %T", raw))
	}
	return fields, nil
}

func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, opts SearchOptions) ([]map[string]interface{}, error) {
	if domain == nil {
		domain = []interface{}{}
	}
	kwargs := map[string]interface{}{}
	if len(opts.Fields) > 0 {
		fields := make([]interface{}, len(opts.Fields))
		for i, f := range opts.Fields {
			fields[i] = f
		}
		kwargs["fields"] = fields
	}
	if opts.Limit > 0 {
		kwargs["limit"] = opts.Limit
	}
	if opts.Offset > 0 {
		kwargs["offset"] = opts.Offset
	}
	if opts.Order != "" {
		kwargs["order"] = opts.Order
	}

	raw, err := c.call(ctx, model, protocol.MethodSearchRead, []interface{}{domain}, kwargs)
	if err != nil {
		return nil, err
	}
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, apperrors.Internal(fmt.Sprintf("unexpected search_read reply %T", raw))
	}
	records := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		if rec, ok := row.(map[string]interface{}); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// SearchCount returns how many records of model match domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain []interface{}) (int64, error) {
	if domain == nil {
		domain = []interface{}{}
	}
	raw, err := c.call(ctx, model, "search_count", []interface{}{domain}, nil)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(raw)
	if !ok {
		return 0, apperrors.Internal(fmt.Sprintf("unexpected search_count reply %T", raw))
	}
	return n, nil
}

// ModelExists reports whether model is installed on the server.
func (c *Client) ModelExists(ctx context.Context, model string) (bool, error) {
	n, err := c.SearchCount(ctx, "ir.model", []interface{}{[]interface{}{"model", "=", model}})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Create returns the id of the new record.
func (c *Client) Create(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	raw, err := c.call(ctx, model, protocol.MethodCreate, []interface{}{values}, nil)
	if err != nil {
		return 0, err
	}
	id, ok := toInt64(raw)
	if !ok {
		return 0, apperrors.Internal(fmt.Sprintf("unexpected create reply %T", raw))
	}
	return id, nil
}

func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) (bool, error) {
	raw, err := c.call(ctx, model, protocol.MethodWrite, []interface{}{idList(ids), values}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := raw.(bool)
	return ok, nil
}

func (c *Client) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	raw, err := c.call(ctx, model, protocol.MethodUnlink, []interface{}{idList(ids)}, nil)
	if err != nil {
		return false, err
	}
	ok, _ := raw.(bool)
	return ok, nil
}

// RecordName returns the display name of one record.
func (c *Client) RecordName(ctx context.Context, model string, id int64) (string, error) {
	raw, err := c.call(ctx, model, protocol.MethodRead, []interface{}{idList([]int64{id})}, map[string]interface{}{
		"fields": []interface{}{"display_name"},
	})
	if err != nil {
		return "", err
	}
	rows, _ := raw.([]interface{})
	if len(rows) == 0 {
		return "", apperrors.NotFound(fmt.Sprintf("%s record %d not found", model, id))
	}
	rec, _ := rows[0].(map[string]interface{})
	return stringField(rec, "display_name"), nil
}

// CheckAccessRights reports whether the connected user may perform
// operation (read, write, create or unlink) on model.
func (c *Client) CheckAccessRights(ctx context.Context, model, operation string) (bool, error) {
	raw, err := c.call(ctx, model, "check_access_rights", []interface{}{operation}, map[string]interface{}{
		"raise_exception": false,
	})
	if err != nil {
		return false, err
	}
	ok, _ := raw.(bool)
	return ok, nil
}

func idList(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func stringField(rec map[string]interface{}, key string) string {
	s, _ := rec[key].(string)
	return s
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case []interface{}:
		if len(n) == 1 {
			return toInt64(n[0])
		}
	}
	return 0, false
}
