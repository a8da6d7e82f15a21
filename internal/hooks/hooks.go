// Package hooks runs a service's servicerunner script at lifecycle events.
//
// The script is invoked as
//
//	servicerunner <event>_<phase> [args...]
//
// from the service's runner directory with SERVICENAME in the environment.
// A missing script, or exit code 127, means the service does not implement
// the hook.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ThomasCrouzet/svcrunner/internal/logging"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/rs/zerolog"
)

// Phase is the side of an operation a hook runs on.
type Phase string

const (
	Start Phase = "start"
	End   Phase = "end"
)

// exitNotImplemented is what a script returns for events it ignores.
const exitNotImplemented = 127

// Invocation is one hook call.
type Invocation struct {
	Service string
	Event   string
	Phase   Phase
	Args    []string
	// Script overrides the service's hook script, e.g. with a preserved copy.
	Script string
}

// Command is the first argument passed to the script.
func (inv Invocation) Command() string {
	return inv.Event + "_" + string(inv.Phase)
}

// Result reports what the hook did.
type Result struct {
	ExitCode    int
	Implemented bool
}

// Runner invokes hooks. Whether a failed hook aborts the operation is up to
// the caller.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ScriptRunner executes hook scripts from the installation's service tree.
type ScriptRunner struct {
	layout paths.Layout
	logger zerolog.Logger
	// Stdout receives hook output when set; otherwise output is logged at
	// debug level.
	Stdout io.Writer
}

// NewScriptRunner returns a runner for services under layout.
func NewScriptRunner(layout paths.Layout, logger zerolog.Logger) *ScriptRunner {
	return &ScriptRunner{
		layout: layout,
		logger: logger.With().Str("component", "hooks").Logger(),
	}
}

var _ Runner = (*ScriptRunner)(nil)

func (r *ScriptRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	script := inv.Script
	if script == "" {
		svc, err := r.layout.Service(inv.Service)
		if err != nil {
			return Result{}, svcerr.New(svcerr.Validation, inv.Service, err)
		}
		script = svc.HookScript()
	}

	log := r.logger.With().Str("service", inv.Service).Str("hook", inv.Command()).Logger()
	if _, err := os.Stat(script); errors.Is(err, os.ErrNotExist) {
		log.Debug().Msg("no hook script")
		return Result{}, nil
	}

	cmd := exec.CommandContext(ctx, script, append([]string{inv.Command()}, inv.Args...)...)
	cmd.Dir = filepath.Dir(script)
	cmd.Env = append(os.Environ(), "SERVICENAME="+inv.Service)

	out := r.Stdout
	if out == nil {
		lw := logging.LineWriter(log, zerolog.DebugLevel, "hook output")
		defer lw.Close()
		out = lw
	}
	cmd.Stdout = out
	cmd.Stderr = out

	log.Debug().Strs("args", inv.Args).Msg("running hook")
	err := cmd.Run()
	if err == nil {
		return Result{Implemented: true}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Result{}, svcerr.New(svcerr.Runtime, inv.Service, fmt.Errorf("running hook %s: %w", inv.Command(), err)).WithPath(script)
	}
	code := exitErr.ExitCode()
	if code == exitNotImplemented {
		log.Debug().Msg("hook not implemented")
		return Result{ExitCode: code}, nil
	}
	return Result{ExitCode: code, Implemented: true},
		svcerr.Newf(svcerr.Runtime, inv.Service, "hook %s exited with code %d", inv.Command(), code).WithPath(script)
}
