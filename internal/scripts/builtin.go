package scripts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/bot-runner/internal/domain"
)

// Builtin identifiers
const (
	PlaceholderBot  = "placeholder_bot.run_script"
	DiagnosticsEcho = "diagnostics.echo"
	DiagnosticsFail = "diagnostics.fail"
)

// RegisterBuiltins adds the scripts shipped with the worker. stepDelay is the
// pause between placeholder steps.
func RegisterBuiltins(r *Registry, stepDelay time.Duration) {
	r.Register(PlaceholderBot, placeholder(stepDelay))
	r.Register(DiagnosticsEcho, echo)
	r.Register(DiagnosticsFail, fail)
}

func placeholder(stepDelay time.Duration) Script {
	const steps = 3
	const source = "placeholder_bot"

	return func(ctx context.Context, inv Invocation) (any, error) {
		logf := func(format string, args ...any) {
			inv.Log(inv.JobID, domain.LogLevelScriptInfo, fmt.Sprintf(format, args...), source)
		}

		logf("Placeholder bot script '%s' started.", source)
		logf("Parameters received: %v", inv.Parameters)
		logf("Input files metadata: %v", inv.InputFiles)

		if len(inv.InputFiles) == 0 {
			logf("No input files provided for this job.")
		}
		for _, f := range inv.InputFiles {
			logf("Processing file: %s at %s", f.OriginalFilename, f.StoragePath)
		}

		for i := 1; i <= steps; i++ {
			logf("Working... step %d/%d", i, steps)
			if inv.Progress != nil {
				inv.Progress(i*100/steps, fmt.Sprintf("step %d/%d", i, steps))
			}
			time.Sleep(stepDelay)
		}

		logf("Placeholder bot script '%s' finished successfully.", source)
		return "Placeholder script executed successfully. See logs for details.", nil
	}
}

func echo(_ context.Context, inv Invocation) (any, error) {
	inv.Log(inv.JobID, domain.LogLevelScriptInfo, fmt.Sprintf("echo: %v", inv.Parameters), "diagnostics")
	return fmt.Sprint(inv.Parameters), nil
}

func fail(_ context.Context, inv Invocation) (any, error) {
	msg, _ := inv.Parameters["message"].(string)
	if msg == "" {
		msg = "diagnostics failure requested"
	}
	return nil, errors.New(msg)
}
