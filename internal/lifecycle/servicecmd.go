package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
)

// ServiceCmd runs a command of an installed service. dstop is handled here;
// everything else goes to the service's servicerunner script with the
// engine's stdio attached. No lock is taken: commands such as start may run
// for as long as the service does. A failing script's *exec.ExitError is
// wrapped in the returned error.
func (e *Engine) ServiceCmd(ctx context.Context, name, command string, args []string) (Result, error) {
	svc, err := e.opts.Layout.Service(name)
	if err != nil {
		return NoChange, svcerr.New(svcerr.Validation, name, err)
	}
	if !util.IsDir(svc.Dir()) {
		return NoChange, svcerr.Newf(svcerr.Validation, name, "service is not installed")
	}
	log := e.logger.With().Str("service", name).Str("command", command).Logger()
	start := time.Now()

	if command == "dstop" {
		res, err := e.dstop(ctx, name, args)
		e.opts.Metrics.Observe("servicecmd", name, outcome(res, err), time.Since(start))
		return res, err
	}

	script := svc.HookScript()
	if _, err := os.Stat(script); err != nil {
		log.Warn().Msg("service has no servicerunner script")
		return NotImplemented, nil
	}

	cmd := exec.CommandContext(ctx, script, append([]string{command}, args...)...)
	cmd.Dir = svc.RunnerDir()
	cmd.Env = append(os.Environ(), "SERVICENAME="+name)
	cmd.Stdin = e.opts.Stdin
	cmd.Stdout = e.opts.Stdout
	cmd.Stderr = e.opts.Stderr

	log.Debug().Strs("args", args).Msg("running service command")
	err = cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		e.opts.Metrics.Observe("servicecmd", name, Success.String(), time.Since(start))
		return Success, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == exitNotImplemented:
		e.opts.Metrics.Observe("servicecmd", name, NotImplemented.String(), time.Since(start))
		return NotImplemented, nil
	case errors.As(err, &exitErr):
		err = svcerr.New(svcerr.Runtime, name, fmt.Errorf("command %s: %w", command, exitErr)).WithPath(script)
	default:
		err = svcerr.New(svcerr.Runtime, name, fmt.Errorf("running command %s: %w", command, err)).WithPath(script)
	}
	e.opts.Metrics.Observe("servicecmd", name, "error", time.Since(start))
	return NoChange, err
}

// exitNotImplemented is what servicerunner returns for commands it does not know.
const exitNotImplemented = 127

// dstop stops and removes a container if it exists.
func (e *Engine) dstop(ctx context.Context, name string, args []string) (Result, error) {
	if len(args) != 1 || args[0] == "" {
		return NoChange, svcerr.Newf(svcerr.Validation, name, "usage: dstop <container>")
	}
	container := args[0]
	exists, err := e.opts.Runtime.ContainerExists(ctx, container)
	if err != nil {
		return NoChange, svcerr.WithService(err, name)
	}
	if !exists {
		return NoChange, nil
	}
	e.logger.Info().Str("service", name).Str("container", container).Msg("stopping container")
	if err := e.opts.Runtime.StopContainer(ctx, container); err != nil {
		return NoChange, svcerr.WithService(err, name)
	}
	if err := e.opts.Runtime.RemoveContainer(ctx, container); err != nil {
		return NoChange, svcerr.WithService(err, name)
	}
	return Success, nil
}

func outcome(res Result, err error) string {
	if err != nil {
		return "error"
	}
	return res.String()
}
