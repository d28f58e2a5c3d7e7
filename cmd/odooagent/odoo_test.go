package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/harunnryd/odoo-agent/internal/errors"
	"github.com/harunnryd/odoo-agent/internal/formatter"
	"github.com/harunnryd/odoo-agent/internal/odoo"
	"github.com/harunnryd/odoo-agent/internal/protocol"
)

type fakeOdoo struct {
	versionErr error
	connectErr error
	models     []odoo.ModelInfo
	fields     map[string]interface{}
	result     odoo.ExecutionResult
	invoked    []protocol.Command
}

func (f *fakeOdoo) Version(ctx context.Context) (map[string]interface{}, error) {
	if f.versionErr != nil {
		return nil, f.versionErr
	}
	return map[string]interface{}{"server_version": "17.0"}, nil
}

func (f *fakeOdoo) Connect(ctx context.Context) (int64, error) {
	if f.connectErr != nil {
		return 0, f.connectErr
	}
	return 2, nil
}

func (f *fakeOdoo) ListModels(ctx context.Context, nameFilter string) ([]odoo.ModelInfo, error) {
	var out []odoo.ModelInfo
	for _, m := range f.models {
		if strings.Contains(m.Model, nameFilter) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeOdoo) ModelFields(ctx context.Context, model string) (map[string]interface{}, error) {
	if f.fields == nil {
		return nil, apperrors.NotFound("model " + model)
	}
	return f.fields, nil
}

func (f *fakeOdoo) Invoke(ctx context.Context, cmd protocol.Command) odoo.ExecutionResult {
	f.invoked = append(f.invoked, cmd)
	return f.result
}

func TestRunPing(t *testing.T) {
	var out bytes.Buffer
	if err := runPing(context.Background(), &fakeOdoo{}, &out); err != nil {
		t.Fatalf("runPing() error = %v", err)
	}
	if !strings.Contains(out.String(), "17.0") || !strings.Contains(out.String(), "uid 2") {
		t.Errorf("unexpected output: %s", out.String())
	}

	err := runPing(context.Background(), &fakeOdoo{versionErr: errors.New("refused")}, &out)
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("version failure error = %v", err)
	}

	err = runPing(context.Background(), &fakeOdoo{connectErr: apperrors.ErrAuthentication}, &out)
	if !errors.Is(err, apperrors.ErrAuthentication) {
		t.Errorf("connect failure error = %v", err)
	}
}

func TestRunModelsSortsAndFilters(t *testing.T) {
	fake := &fakeOdoo{models: []odoo.ModelInfo{
		{Model: "sale.order.line", Name: "Sales Order Line"},
		{Model: "sale.order", Name: "Sales Order"},
		{Model: "res.partner", Name: "Contact"},
	}}

	var out bytes.Buffer
	if err := runModels(context.Background(), fake, "sale", formatter.OutputFormatYAML, &out); err != nil {
		t.Fatalf("runModels() error = %v", err)
	}
	text := out.String()
	if strings.Contains(text, "res.partner") {
		t.Errorf("filter not applied: %s", text)
	}
	if strings.Index(text, "model: sale.order\n") > strings.Index(text, "model: sale.order.line") {
		t.Errorf("models not sorted: %s", text)
	}
}

func TestRunFields(t *testing.T) {
	fake := &fakeOdoo{fields: map[string]interface{}{
		"name": map[string]interface{}{"string": "Name", "type": "char"},
	}}

	var out bytes.Buffer
	if err := runFields(context.Background(), fake, "res.partner", formatter.OutputFormatJSON, &out); err != nil {
		t.Fatalf("runFields() error = %v", err)
	}
	if !strings.Contains(out.String(), `"type": "char"`) {
		t.Errorf("unexpected output: %s", out.String())
	}

	err := runFields(context.Background(), &fakeOdoo{}, "x.missing", formatter.OutputFormatJSON, &out)
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("missing model error = %v", err)
	}
}

func TestRunExec(t *testing.T) {
	fake := &fakeOdoo{result: odoo.ExecutionResult{Success: true, Result: int64(42), Attempts: 1}}

	var out bytes.Buffer
	payload := `{"model": "res.partner", "method": "create", "args": [{"name": "Azure"}]}`
	if err := runExec(context.Background(), fake, payload, &out); err != nil {
		t.Fatalf("runExec() error = %v", err)
	}
	if len(fake.invoked) != 1 || fake.invoked[0].Model != "res.partner" {
		t.Fatalf("invoked = %+v", fake.invoked)
	}
	if !strings.Contains(out.String(), `"result": 42`) {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestRunExecRejectsBadCommands(t *testing.T) {
	fake := &fakeOdoo{}
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{"not json", `{"model": `, apperrors.ErrCommandParse},
		{"missing method", `{"model": "res.partner"}`, apperrors.ErrMalformedCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runExec(context.Background(), fake, tt.payload, &bytes.Buffer{})
			if !errors.Is(err, tt.want) {
				t.Errorf("runExec() error = %v, want %v", err, tt.want)
			}
		})
	}
	if len(fake.invoked) != 0 {
		t.Errorf("invalid commands must not reach the store, got %d calls", len(fake.invoked))
	}
}
