package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
)

// RecordingHooks is a hooks.Runner that records every invocation and
// reports every hook as implemented unless told otherwise.
type RecordingHooks struct {
	mu       sync.Mutex
	calls    []hooks.Invocation
	failures map[string]int
	// OnRun, when set, is called for every invocation before it is recorded;
	// tests use it to act as the service, e.g. write a custom backup file.
	OnRun func(inv hooks.Invocation)
}

var _ hooks.Runner = (*RecordingHooks)(nil)

// NewRecordingHooks returns a runner with no failures configured.
func NewRecordingHooks() *RecordingHooks {
	return &RecordingHooks{failures: make(map[string]int)}
}

// FailWith makes the hook command (e.g. "install_end") exit with code.
func (r *RecordingHooks) FailWith(command string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[command] = code
}

func (r *RecordingHooks) Run(_ context.Context, inv hooks.Invocation) (hooks.Result, error) {
	if r.OnRun != nil {
		r.OnRun(inv)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, inv)
	if code, ok := r.failures[inv.Command()]; ok {
		return hooks.Result{ExitCode: code, Implemented: true},
			svcerr.Newf(svcerr.Runtime, inv.Service, "hook %s exited with code %d", inv.Command(), code)
	}
	return hooks.Result{Implemented: true}, nil
}

// Invocations returns everything recorded so far.
func (r *RecordingHooks) Invocations() []hooks.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hooks.Invocation(nil), r.calls...)
}

// Commands returns "<service> <event>_<phase>" per invocation.
func (r *RecordingHooks) Commands() []string {
	var out []string
	for _, inv := range r.Invocations() {
		out = append(out, strings.TrimSpace(inv.Service+" "+inv.Command()))
	}
	return out
}
