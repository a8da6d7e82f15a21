package testutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRuntimeVolumes(t *testing.T) {
	rt := NewFakeRuntime(t)
	ctx := context.Background()

	ok, err := rt.VolumeExists(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rt.CreateVolume(ctx, "v1"))
	ok, _ = rt.VolumeExists(ctx, "v1")
	assert.True(t, ok)
	assert.Equal(t, []string{"v1"}, rt.Volumes())

	require.NoError(t, rt.RemoveVolume(ctx, "v1"))
	assert.Error(t, rt.RemoveVolume(ctx, "v1"))
}

func TestFakeRuntimeStreamsVolumeContents(t *testing.T) {
	rt := NewFakeRuntime(t)
	rt.AddImage("utils", FakeImage{UID: "0"})
	ctx := context.Background()

	require.NoError(t, rt.CreateVolume(ctx, "src"))
	require.NoError(t, os.WriteFile(filepath.Join(rt.VolumeDir("src"), "f"), []byte("data"), 0o644))

	var buf bytes.Buffer
	require.NoError(t, rt.RunStream(ctx, runtime.RunSpec{
		Image:   "utils",
		Mounts:  []runtime.Mount{{Source: "src", Target: "/src", ReadOnly: true}},
		Command: []string{"tar", "-C", "/src", "-cf", "-", "."},
	}, nil, &buf))

	require.NoError(t, rt.RunStream(ctx, runtime.RunSpec{
		Image:   "utils",
		Mounts:  []runtime.Mount{{Source: "dst", Target: "/dst"}},
		Command: []string{"tar", "-C", "/dst", "-xf", "-"},
	}, &buf, nil))

	data, err := os.ReadFile(filepath.Join(rt.VolumeDir("dst"), "f"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestFakeRuntimeFailOn(t *testing.T) {
	rt := NewFakeRuntime(t)
	rt.FailOn("createvolume v1", ErrInjected)

	err := rt.CreateVolume(context.Background(), "v1")
	assert.True(t, errors.Is(err, svcerr.ErrRuntime))
	assert.True(t, errors.Is(err, ErrInjected))
	assert.Equal(t, []string{"createvolume v1"}, rt.Calls())
}
