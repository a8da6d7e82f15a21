package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hookScript = `#!/bin/sh
echo "$SERVICENAME $*" >> "$HOOK_LOG"
case "$1" in
  install_end) echo "install failed" >&2; exit 3 ;;
  update_start) exit 127 ;;
esac
echo "did $1"
`

func setup(t *testing.T, withScript bool) (paths.Service, *ScriptRunner, string) {
	t.Helper()
	layout, err := paths.NewLayout(t.TempDir())
	require.NoError(t, err)
	svc, err := layout.Service("blog")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(svc.RunnerDir(), 0o755))
	if withScript {
		require.NoError(t, os.WriteFile(svc.HookScript(), []byte(hookScript), 0o755))
		require.NoError(t, os.WriteFile(svc.VariablesFile(), []byte("SERVICENAME=\"blog\"\n"), 0o644))
	}
	log := filepath.Join(t.TempDir(), "hooks.log")
	t.Setenv("HOOK_LOG", log)
	return svc, NewScriptRunner(layout, zerolog.Nop()), log
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestRunWithoutScript(t *testing.T) {
	_, r, log := setup(t, false)

	res, err := r.Run(context.Background(), Invocation{Service: "blog", Event: "install", Phase: End})
	require.NoError(t, err)
	assert.False(t, res.Implemented)
	assert.Empty(t, readLog(t, log))
}

func TestRunPassesCommandArgsAndEnv(t *testing.T) {
	_, r, log := setup(t, true)
	var out bytes.Buffer
	r.Stdout = &out

	res, err := r.Run(context.Background(), Invocation{
		Service: "blog", Event: "backup", Phase: Start, Args: []string{"/tmp/custom"},
	})
	require.NoError(t, err)
	assert.True(t, res.Implemented)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"blog backup_start /tmp/custom"}, readLog(t, log))
	assert.Equal(t, "did backup_start\n", out.String())
}

func TestRunExitCodes(t *testing.T) {
	_, r, _ := setup(t, true)
	ctx := context.Background()

	res, err := r.Run(ctx, Invocation{Service: "blog", Event: "update", Phase: Start})
	require.NoError(t, err)
	assert.False(t, res.Implemented)
	assert.Equal(t, 127, res.ExitCode)

	res, err = r.Run(ctx, Invocation{Service: "blog", Event: "install", Phase: End})
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcerr.ErrRuntime))
	assert.True(t, res.Implemented)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, err.Error(), "install_end exited with code 3")
}

func TestBracketPreserveSurvivesDeletion(t *testing.T) {
	svc, r, log := setup(t, true)
	ctx := context.Background()

	b := New(r, svc, "uninstall")
	_, err := b.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Preserve())

	require.NoError(t, os.RemoveAll(svc.Dir()))

	res, err := b.End(ctx)
	require.NoError(t, err)
	assert.True(t, res.Implemented)
	assert.Equal(t, []string{"blog uninstall_start", "blog uninstall_end"}, readLog(t, log))

	preserved := b.preserved
	require.NoError(t, b.Close())
	assert.NoDirExists(t, preserved)
}

func TestBracketPreserveWithoutScript(t *testing.T) {
	svc, r, _ := setup(t, false)

	b := New(r, svc, "obliterate")
	require.NoError(t, b.Preserve())
	assert.Empty(t, b.preserved)

	res, err := b.End(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Implemented)
	assert.NoError(t, b.Close())
}
