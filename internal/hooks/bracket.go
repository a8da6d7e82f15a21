package hooks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ThomasCrouzet/svcrunner/internal/paths"
)

// Bracket pairs the start and end hooks of one operation.
type Bracket struct {
	runner    Runner
	svc       paths.Service
	event     string
	args      []string
	preserved string
}

// New returns the bracket for event on svc. args are passed to both hooks.
func New(runner Runner, svc paths.Service, event string, args ...string) *Bracket {
	return &Bracket{runner: runner, svc: svc, event: event, args: args}
}

// Start runs <event>_start.
func (b *Bracket) Start(ctx context.Context) (Result, error) {
	return b.run(ctx, Start)
}

// End runs <event>_end, from the preserved copy if there is one.
func (b *Bracket) End(ctx context.Context) (Result, error) {
	return b.run(ctx, End)
}

func (b *Bracket) run(ctx context.Context, phase Phase) (Result, error) {
	inv := Invocation{
		Service: b.svc.Name(),
		Event:   b.event,
		Phase:   phase,
		Args:    b.args,
	}
	if b.preserved != "" {
		inv.Script = filepath.Join(b.preserved, filepath.Base(b.svc.HookScript()))
	}
	return b.runner.Run(ctx, inv)
}

// Preserve copies the runner directory's top-level files (hook script and
// the settings it sources) to a temp directory, so End still works after the
// service tree is deleted. Nothing is copied when there is no hook script.
func (b *Bracket) Preserve() error {
	if _, err := os.Stat(b.svc.HookScript()); err != nil {
		return nil
	}
	if err := os.MkdirAll(b.svc.Layout().Temp(), 0o755); err != nil {
		return fmt.Errorf("preserving hook script: %w", err)
	}
	dir, err := os.MkdirTemp(b.svc.Layout().Temp(), "hook-"+b.svc.Name()+"-")
	if err != nil {
		return fmt.Errorf("preserving hook script: %w", err)
	}

	entries, err := os.ReadDir(b.svc.RunnerDir())
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("preserving hook script: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(b.svc.RunnerDir(), e.Name()), filepath.Join(dir, e.Name())); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("preserving hook script: %w", err)
		}
	}
	b.preserved = dir
	return nil
}

// Close removes the preserved copy.
func (b *Bracket) Close() error {
	if b.preserved == "" {
		return nil
	}
	err := os.RemoveAll(b.preserved)
	b.preserved = ""
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
