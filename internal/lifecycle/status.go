package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/resolver"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
)

// State is derived from disk on every call; nothing records it.
type State int

const (
	Absent State = iota
	Installed
	// Broken: the service directory exists but its image record or
	// definition cannot be read.
	Broken
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Installed:
		return "installed"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// ErrBroken is wrapped by operations that need an installed service but find
// a Broken one.
var ErrBroken = errors.New("broken")

// Status describes one service.
type Status struct {
	Name  string
	State State
	Image string
	Model *model.ServiceModel // set when Installed
	Err   error               // why the service is Broken

	InstalledAt time.Time // zero when unknown
}

// inspect derives the state of svc.
func inspect(svc paths.Service) Status {
	st := Status{Name: svc.Name()}
	if !util.IsDir(svc.Dir()) {
		st.State = Absent
		return st
	}
	image, err := resolver.ReadImageName(svc)
	if err != nil {
		st.State, st.Err = Broken, err
		return st
	}
	st.Image = image
	m, _, err := resolver.Resolve(resolver.Input{
		RunnerDir:   svc.RunnerDir(),
		ServiceName: svc.Name(),
		MainImage:   image,
	})
	if err != nil {
		st.State, st.Err = Broken, err
		return st
	}
	st.State, st.Model = Installed, m
	if at, err := resolver.ReadInstallTime(svc); err == nil {
		st.InstalledAt = at
	}
	return st
}

// Status reports the state of name without taking its lock.
func (e *Engine) Status(_ context.Context, name string) (Status, error) {
	svc, err := e.opts.Layout.Service(name)
	if err != nil {
		return Status{}, svcerr.New(svcerr.Validation, name, err)
	}
	return inspect(svc), nil
}

// List reports every service directory under the root, sorted by name.
func (e *Engine) List(ctx context.Context) ([]Status, error) {
	entries, err := os.ReadDir(e.opts.Layout.Services())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, "", err).WithPath(e.opts.Layout.Services())
	}
	var out []Status
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		st, err := e.Status(ctx, entry.Name())
		if err != nil {
			e.logger.Warn().Str("dir", entry.Name()).Err(err).Msg("skipping directory that is not a valid service name")
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

// Status reports the state of the session's service.
func (s *Session) Status() Status {
	return inspect(s.svc)
}

// Model resolves the installed service. Anything but Installed is an error:
// Absent is Validation, Broken carries the underlying failure.
func (s *Session) Model() (*model.ServiceModel, error) {
	st := s.Status()
	switch st.State {
	case Installed:
		return st.Model, nil
	case Absent:
		return nil, svcerr.Newf(svcerr.Validation, s.svc.Name(), "service is not installed")
	default:
		return nil, fmt.Errorf("service %s is %w (try: svcrunner recover %s): %w", s.svc.Name(), ErrBroken, s.svc.Name(), st.Err)
	}
}
