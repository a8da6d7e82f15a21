package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/archive"
	"github.com/ThomasCrouzet/svcrunner/internal/backup"
	"github.com/ThomasCrouzet/svcrunner/internal/config"
	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/logging"
	"github.com/ThomasCrouzet/svcrunner/internal/metrics"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/provision"
	"github.com/ThomasCrouzet/svcrunner/internal/proxy"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/ui"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"github.com/rs/zerolog"
)

// app holds the collaborators one command invocation needs.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	layout  paths.Layout
	runtime runtime.Runtime
	hooks   *hooks.ScriptRunner
	metrics *metrics.Recorder
	engine  *lifecycle.Engine
}

// newApp loads the config and wires the engine. Failures are reported to
// stderr before being returned.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, report("Failed to load config", err)
	}

	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	layout, err := paths.NewLayout(util.ExpandPath(cfg.Root))
	if err != nil {
		return nil, report("Invalid root", err)
	}

	rt := runtime.NewDocker(cfg.Runtime.DockerBinary, logger)
	hk := hooks.NewScriptRunner(layout, logger)
	if cfg.Hooks.ShowOutput {
		hk.Stdout = os.Stdout
	}
	prov := provision.New(rt, cfg.UtilsImage, logger)
	px, err := proxy.New(proxy.Mode(cfg.Proxy.Mode), cfg.Proxy.Container, rt, logger)
	if err != nil {
		return nil, report("Invalid proxy config", err)
	}
	rec := metrics.New()

	engine, err := lifecycle.New(lifecycle.Options{
		Layout:          layout,
		Runtime:         rt,
		Hooks:           hk,
		Provisioner:     prov,
		Validator:       prov,
		Proxy:           px,
		Metrics:         rec,
		Logger:          logger,
		UtilsImage:      cfg.UtilsImage,
		Launcher:        cfg.Launcher,
		PullParallelism: cfg.Runtime.PullParallelism,
		LockTimeout:     cfg.Lock.Timeout,
	})
	if err != nil {
		return nil, report("Failed to start", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		layout:  layout,
		runtime: rt,
		hooks:   hk,
		metrics: rec,
		engine:  engine,
	}, nil
}

// pipeline builds the backup pipeline; it needs the passphrase.
func (a *app) pipeline() (*backup.Pipeline, error) {
	pass, err := a.cfg.Passphrase()
	if err != nil {
		return nil, err
	}
	codec, err := archive.NewCodec(pass, a.cfg.Backup.WorkFactor)
	if err != nil {
		return nil, err
	}
	return backup.New(backup.Options{
		Engine:     a.engine,
		Runtime:    a.runtime,
		Hooks:      a.hooks,
		Codec:      codec,
		Metrics:    a.metrics,
		Logger:     a.logger,
		UtilsImage: a.cfg.UtilsImage,
	})
}

// close flushes metrics to the textfile collector, if configured.
func (a *app) close() {
	if a.cfg.Metrics.Textfile == "" {
		return
	}
	path := util.ExpandPath(a.cfg.Metrics.Textfile)
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Warn().Err(err).Str("path", path).Msg("writing metrics textfile failed")
	}
}

// reportedError marks an error already shown to the user.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// report prints err with a hint and marks it as shown.
func report(title string, err error) error {
	if reported(err) {
		return err
	}
	ui.Report(os.Stderr, title, err)
	return &reportedError{err: err}
}

func reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// printResult tells the user what an operation did.
func printResult(done, unchanged string, res lifecycle.Result) {
	switch res {
	case lifecycle.Success:
		ui.Success(done)
	case lifecycle.NoChange:
		fmt.Println(ui.Dim(unchanged))
	case lifecycle.NotImplemented:
		ui.Warn("not implemented by the service")
	}
}
