// Package lifecycle installs, updates and removes services. Every operation
// derives the service's state from disk, holds the service's lock for its
// whole duration, and on failure runs the rollback returned by the step that
// failed.
package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/lock"
	"github.com/ThomasCrouzet/svcrunner/internal/metrics"
	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/provision"
	"github.com/ThomasCrouzet/svcrunner/internal/proxy"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/rs/zerolog"
)

// Result is the outcome of a successful operation.
type Result int

const (
	Success Result = iota
	NoChange
	NotImplemented
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NoChange:
		return "nochange"
	case NotImplemented:
		return "notimplemented"
	default:
		return "unknown"
	}
}

// Provisioner realizes the runtime volumes of a model.
type Provisioner interface {
	Ensure(ctx context.Context, m *model.ServiceModel) error
}

// Options wires an Engine. Layout, Runtime, Hooks, Provisioner and Validator
// are required.
type Options struct {
	Layout      paths.Layout
	Runtime     runtime.Runtime
	Hooks       hooks.Runner
	Provisioner Provisioner
	Validator   provision.ImageValidator
	Proxy       proxy.Proxy
	Metrics     *metrics.Recorder
	Logger      zerolog.Logger

	UtilsImage      string
	Launcher        string // command the launch scripts exec, usually "svcrunner"
	PullParallelism int
	LockTimeout     time.Duration

	// Stdin, Stdout and Stderr are handed to service commands. They default
	// to the process's own.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Now is the clock used for INSTALLTIME; time.Now when nil.
	Now func() time.Time
}

// Engine runs lifecycle operations. It holds no per-service state.
type Engine struct {
	opts   Options
	logger zerolog.Logger
}

// New validates opts and fills defaults.
func New(opts Options) (*Engine, error) {
	var missing []string
	if opts.Layout.Root == "" {
		missing = append(missing, "layout")
	}
	if opts.Runtime == nil {
		missing = append(missing, "runtime")
	}
	if opts.Hooks == nil {
		missing = append(missing, "hooks")
	}
	if opts.Provisioner == nil {
		missing = append(missing, "provisioner")
	}
	if opts.Validator == nil {
		missing = append(missing, "validator")
	}
	if len(missing) > 0 {
		return nil, errors.New("lifecycle: missing options: " + strings.Join(missing, ", "))
	}
	if opts.Proxy == nil {
		opts.Proxy = proxy.None{}
	}
	if opts.Launcher == "" {
		opts.Launcher = "svcrunner"
	}
	if opts.PullParallelism < 1 {
		opts.PullParallelism = 1
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "lifecycle").Logger(),
	}, nil
}

// Layout is the installation the engine manages.
func (e *Engine) Layout() paths.Layout {
	return e.opts.Layout
}

// Session is a locked view of one service. Backup and restore use it to run
// several lifecycle steps under a single lock.
type Session struct {
	e      *Engine
	svc    paths.Service
	lk     *lock.Lock
	logger zerolog.Logger
}

// Open validates name and takes the service's lock.
func (e *Engine) Open(ctx context.Context, name string) (*Session, error) {
	svc, err := e.opts.Layout.Service(name)
	if err != nil {
		return nil, svcerr.New(svcerr.Validation, name, err)
	}
	lk, err := lock.Acquire(ctx, svc.LockFile(), e.opts.LockTimeout)
	if err != nil {
		return nil, svcerr.WithService(err, name)
	}
	return &Session{
		e:      e,
		svc:    svc,
		lk:     lk,
		logger: e.logger.With().Str("service", name).Logger(),
	}, nil
}

// Service is the session's service paths.
func (s *Session) Service() paths.Service {
	return s.svc
}

// Logger is scoped to the session's service.
func (s *Session) Logger() zerolog.Logger {
	return s.logger
}

// Close releases the lock.
func (s *Session) Close() error {
	return s.lk.Release()
}

// run wraps a public operation: lock, run, record metrics.
func (e *Engine) run(ctx context.Context, op, name string, fn func(s *Session) (Result, error)) (Result, error) {
	start := time.Now()
	s, err := e.Open(ctx, name)
	if err != nil {
		e.opts.Metrics.Observe(op, name, "error", time.Since(start))
		return NoChange, err
	}
	defer s.Close()

	res, err := fn(s)
	e.opts.Metrics.Observe(op, name, outcome(res, err), time.Since(start))
	return res, err
}

// Install installs name from image.
func (e *Engine) Install(ctx context.Context, name, image string) (Result, error) {
	return e.run(ctx, "install", name, func(s *Session) (Result, error) {
		return s.Install(ctx, image)
	})
}

// Update reinstalls name's file tree from the latest main image.
func (e *Engine) Update(ctx context.Context, name string) (Result, error) {
	return e.run(ctx, "update", name, func(s *Session) (Result, error) {
		return s.Update(ctx)
	})
}

// Uninstall removes name's file tree and launch script. Volumes are kept.
func (e *Engine) Uninstall(ctx context.Context, name string) (Result, error) {
	return e.run(ctx, "uninstall", name, func(s *Session) (Result, error) {
		return s.Uninstall(ctx)
	})
}

// Obliterate removes everything svcrunner knows about name, volumes included.
func (e *Engine) Obliterate(ctx context.Context, name string) (Result, error) {
	return e.run(ctx, "obliterate", name, func(s *Session) (Result, error) {
		return s.Obliterate(ctx)
	})
}

// Recover reinstalls name, keeping its volumes. An empty image means the
// recorded one.
func (e *Engine) Recover(ctx context.Context, name, image string) (Result, error) {
	return e.run(ctx, "recover", name, func(s *Session) (Result, error) {
		return s.Recover(ctx, image)
	})
}
