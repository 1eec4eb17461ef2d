package scripts

import (
	"context"
	"sync"
	"testing"

	"github.com/cuongbtq/bot-runner/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, Invocation) (any, error) { return "ok", nil }

func TestParseIdentifier(t *testing.T) {
	tests := []struct {
		identifier string
		module, fn string
		ok         bool
	}{
		{"placeholder_bot.run_script", "placeholder_bot", "run_script", true},
		{"invoices.extract.run", "invoices.extract", "run", true},
		{"noseparator", "", "", false},
		{".run", "", "", false},
		{"module.", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			module, fn, ok := ParseIdentifier(tt.identifier)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.module, module)
			assert.Equal(t, tt.fn, fn)
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register("reports.daily", noop)

	tests := []struct {
		name       string
		identifier string
		kind       ResolutionKind
	}{
		{name: "found", identifier: "reports.daily", kind: ResolutionOK},
		{name: "no separator", identifier: "reports", kind: ResolutionInvalidIdentifier},
		{name: "unknown module", identifier: "nomodule.fn", kind: ResolutionModuleNotFound},
		{name: "unknown function", identifier: "reports.weekly", kind: ResolutionFunctionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.identifier)

			assert.Equal(t, tt.kind, res.Kind, res.Kind.String())
			assert.Equal(t, tt.identifier, res.Identifier)
			if tt.kind == ResolutionOK {
				require.NotNil(t, res.Script)
				assert.NoError(t, res.Err)
			} else {
				assert.Nil(t, res.Script)
				assert.Error(t, res.Err)
			}
		})
	}
}

func TestRegistry_RegisterPanics(t *testing.T) {
	r := NewRegistry()
	r.Register("a.b", noop)

	assert.Panics(t, func() { r.Register("a.b", noop) }, "duplicate")
	assert.Panics(t, func() { r.Register("nodot", noop) }, "malformed")
	assert.Panics(t, func() { r.Register("a.c", nil) }, "nil script")
}

func TestRegistry_Identifiers(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, 0)

	assert.Equal(t, []string{DiagnosticsEcho, DiagnosticsFail, PlaceholderBot}, r.Identifiers())
}

type recordedLog struct {
	level, message, source string
}

func TestPlaceholderScript(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, 0)

	res := r.Resolve(PlaceholderBot)
	require.Equal(t, ResolutionOK, res.Kind)

	var (
		mu       sync.Mutex
		logs     []recordedLog
		progress []int
	)
	inv := Invocation{
		JobID:      "job-1",
		Parameters: map[string]any{"customer": "acme"},
		InputFiles: []domain.InputFile{{OriginalFilename: "invoice.pdf", StoragePath: "/uploads/job-1/invoice.pdf"}},
		Log: func(jobID, level, message, source string) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, "job-1", jobID)
			logs = append(logs, recordedLog{level, message, source})
		},
		Progress: func(percent int, _ string) { progress = append(progress, percent) },
	}

	result, err := res.Script(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "Placeholder script executed successfully. See logs for details.", result)

	require.NotEmpty(t, logs)
	assert.Contains(t, logs[0].message, "started")
	assert.Contains(t, logs[len(logs)-1].message, "finished successfully")
	for _, l := range logs {
		assert.Equal(t, domain.LogLevelScriptInfo, l.level)
	}

	var sawFile bool
	for _, l := range logs {
		if l.message == "Processing file: invoice.pdf at /uploads/job-1/invoice.pdf" {
			sawFile = true
		}
	}
	assert.True(t, sawFile)
	assert.Equal(t, []int{33, 66, 100}, progress)
}

func TestDiagnosticsFail(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, 0)

	res := r.Resolve(DiagnosticsFail)
	_, err := res.Script(context.Background(), Invocation{Parameters: map[string]any{"message": "boom"}})
	require.EqualError(t, err, "boom")
}
