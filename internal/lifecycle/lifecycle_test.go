package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/lock"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/provision"
	"github.com/ThomasCrouzet/svcrunner/internal/proxy"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	utilsImage = "svcrunner/rootutils"
	blogImage  = "example/blog:2"
)

const blogManifest = `version: "2"
volumes:
  data:
services:
  blog:
    image: example/blog:2
    volumes:
      - data:/data
  cache:
    image: redis:7
`

const blogScript = `#!/bin/sh
case "$1" in
  hello) echo "hello from $SERVICENAME $2" ;;
  fail) exit 3 ;;
  *) exit 127 ;;
esac
`

type harness struct {
	engine *Engine
	rt     *testutil.FakeRuntime
	hooks  *testutil.RecordingHooks
	layout paths.Layout
	stdout *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	layout, err := paths.NewLayout(filepath.Join(t.TempDir(), "root"))
	require.NoError(t, err)

	rt := testutil.NewFakeRuntime(t)
	rt.AddImage(utilsImage, testutil.FakeImage{UID: "0"})
	rt.AddImage("redis:7", testutil.FakeImage{UID: "999"})
	rt.AddImage(blogImage, testutil.FakeImage{UID: "1000", Payload: map[string]string{
		"docker-compose.yml": blogManifest,
		"servicerunner":      blogScript,
	}})

	h := &harness{rt: rt, hooks: testutil.NewRecordingHooks(), layout: layout, stdout: &bytes.Buffer{}}
	prov := provision.New(rt, utilsImage, zerolog.Nop())
	h.engine, err = New(Options{
		Layout:      layout,
		Runtime:     rt,
		Hooks:       h.hooks,
		Provisioner: prov,
		Validator:   prov,
		Logger:      zerolog.Nop(),
		UtilsImage:  utilsImage,
		LockTimeout: 200 * time.Millisecond,
		Stdout:      h.stdout,
		Stderr:      h.stdout,
		Now:         func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func (h *harness) service(t *testing.T, name string) paths.Service {
	t.Helper()
	svc, err := h.layout.Service(name)
	require.NoError(t, err)
	return svc
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime")
}

func TestInstallThenUninstallKeepsVolumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, "blog")

	res, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	assert.Equal(t, Success, res)

	assert.FileExists(t, filepath.Join(svc.RunnerDir(), "docker-compose.yml"))
	assert.FileExists(t, svc.VariablesFile())
	assert.FileExists(t, svc.UtilsFile())
	assert.FileExists(t, svc.ImageNameFile())
	assert.DirExists(t, svc.TempDir())
	assert.DirExists(t, svc.HostVolume())

	info, err := os.Stat(svc.LaunchScript())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	script, err := os.ReadFile(svc.LaunchScript())
	require.NoError(t, err)
	assert.Contains(t, string(script), `exec svcrunner servicecmd blog "$@"`)

	vars, err := os.ReadFile(svc.VariablesFile())
	require.NoError(t, err)
	assert.Contains(t, string(vars), `SERVICENAME="blog"`)
	assert.Contains(t, string(vars), `INSTALLTIME="2026-05-01T10:00:00Z"`)

	assert.Equal(t, []string{"svcrunner-blogdata"}, h.rt.Volumes())
	assert.Equal(t, "1000", h.rt.Owner("svcrunner-blogdata"))
	assert.Equal(t, []string{"pull example/blog:2", "pull redis:7"}, h.rt.CallsWithPrefix("pull"))
	assert.Equal(t, []string{"blog install_end"}, h.hooks.Commands())

	st, err := h.engine.Status(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Installed, st.State)
	assert.Equal(t, blogImage, st.Image)

	res, err = h.engine.Uninstall(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.NoDirExists(t, svc.Dir())
	assert.NoFileExists(t, svc.LaunchScript())
	assert.Equal(t, []string{"svcrunner-blogdata"}, h.rt.Volumes())
	assert.DirExists(t, svc.HostVolume())
	assert.Equal(t, []string{"blog install_end", "blog uninstall_start", "blog uninstall_end"}, h.hooks.Commands())

	// the end hook ran from a preserved copy, which is cleaned up afterwards
	last := h.hooks.Invocations()[2]
	assert.NotEmpty(t, last.Script)
	assert.NoFileExists(t, last.Script)

	res, err = h.engine.Uninstall(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, NoChange, res)
}

func TestInstallRefusesExistingServiceDir(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)

	_, err = h.engine.Install(ctx, "blog", blogImage)
	assert.True(t, errors.Is(err, svcerr.ErrFilesystem))
}

func TestInstallUnsupportedVersionCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.rt.AddImage("example/old", testutil.FakeImage{UID: "1000", Payload: map[string]string{
		"docker-compose.yml": "version: 1\nvolumes:\nservices:\n  old:\n    image: example/old\n",
	}})
	svc := h.service(t, "old")

	_, err := h.engine.Install(context.Background(), "old", "example/old")
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcerr.ErrResolution))
	assert.NoDirExists(t, svc.Dir())
	assert.NoFileExists(t, svc.LaunchScript())
	assert.Empty(t, h.hooks.Commands())

	// staging directories are cleaned up too
	entries, err := os.ReadDir(h.layout.Temp())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInstallRollsBackOnProvisionFailure(t *testing.T) {
	h := newHarness(t)
	h.rt.FailOn("createvolume svcrunner-blogdata", testutil.ErrInjected)
	svc := h.service(t, "blog")

	_, err := h.engine.Install(context.Background(), "blog", blogImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcerr.ErrRuntime))
	assert.NoDirExists(t, svc.Dir())
	assert.NoFileExists(t, svc.LaunchScript())
	assert.Empty(t, h.hooks.Commands(), "install_end only runs on success")
}

func TestInstallRejectsRootImage(t *testing.T) {
	h := newHarness(t)
	h.rt.AddImage("example/rooty", testutil.FakeImage{UID: "0", Payload: map[string]string{"servicerunner": "#!/bin/sh\n"}})

	_, err := h.engine.Install(context.Background(), "rooty", "example/rooty")
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
	assert.NoDirExists(t, h.service(t, "rooty").Dir())
}

func TestInstallRejectsImageWithoutPayload(t *testing.T) {
	h := newHarness(t)
	h.rt.AddImage("example/plain", testutil.FakeImage{UID: "1000"})

	_, err := h.engine.Install(context.Background(), "plain", "example/plain")
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
}

func TestUpdateKeepsVolumeContents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, "blog")
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)

	data := filepath.Join(h.rt.VolumeDir("svcrunner-blogdata"), "post.md")
	require.NoError(t, os.WriteFile(data, []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(svc.RunnerDir(), "stale"), []byte("x"), 0o644))

	res, err := h.engine.Update(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Success, res)

	assert.FileExists(t, data)
	assert.NoFileExists(t, filepath.Join(svc.RunnerDir(), "stale"))
	assert.Equal(t, []string{"blog install_end", "blog update_start", "blog update_end"}, h.hooks.Commands())
	assert.Len(t, h.rt.CallsWithPrefix("createvolume"), 1)
}

func TestUpdateRequiresInstalled(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Update(context.Background(), "blog")
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
}

func TestUpdateStartHookFailureAborts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	h.hooks.FailWith("update_start", 1)

	_, err = h.engine.Update(ctx, "blog")
	require.Error(t, err)
	assert.Len(t, h.rt.CallsWithPrefix("pull example/blog:2"), 1)
}

func TestObliterate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, "blog")
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(svc.HostVolume(), "state"), []byte("x"), 0o644))

	res, err := h.engine.Obliterate(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Empty(t, h.rt.Volumes())
	assert.NoDirExists(t, svc.Dir())
	assert.NoDirExists(t, svc.HostVolume())
	assert.NoFileExists(t, svc.LaunchScript())
	assert.Equal(t, []string{"blog install_end", "blog obliterate_start", "blog obliterate_end"}, h.hooks.Commands())

	res, err = h.engine.Obliterate(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, NoChange, res)
}

func TestObliterateNothingFound(t *testing.T) {
	h := newHarness(t)
	res, err := h.engine.Obliterate(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, NoChange, res)
}

func TestObliterateReportsVolumeFailureAfterCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, "blog")
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	h.rt.FailOn("removevolume svcrunner-blogdata", testutil.ErrInjected)

	_, err = h.engine.Obliterate(ctx, "blog")
	require.Error(t, err)
	assert.True(t, errors.Is(err, svcerr.ErrRuntime))
	assert.NoDirExists(t, svc.Dir())
	assert.NoDirExists(t, svc.HostVolume())
}

func TestRecoverBrokenService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := h.service(t, "blog")
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	data := filepath.Join(h.rt.VolumeDir("svcrunner-blogdata"), "post.md")
	require.NoError(t, os.WriteFile(data, []byte("hello"), 0o644))

	require.NoError(t, os.Remove(filepath.Join(svc.RunnerDir(), "docker-compose.yml")))
	st, err := h.engine.Status(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Broken, st.State)
	assert.True(t, errors.Is(st.Err, svcerr.ErrResolution))

	_, err = h.engine.Update(ctx, "blog")
	assert.True(t, errors.Is(err, ErrBroken))
	assert.True(t, errors.Is(err, svcerr.ErrResolution))
	assert.Contains(t, err.Error(), "service blog is broken")

	res, err := h.engine.Recover(ctx, "blog", "")
	require.NoError(t, err)
	assert.Equal(t, Success, res)

	st, err = h.engine.Status(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, Installed, st.State)
	assert.FileExists(t, data)
}

func TestRecoverWithoutRecordNeedsImage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Recover(ctx, "blog", "")
	require.Error(t, err)

	res, err := h.engine.Recover(ctx, "blog", blogImage)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
}

func TestUninstallNotifiesProxy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := proxy.New(proxy.ModeCaddy, proxy.DefaultCaddyContainer, h.rt, zerolog.Nop())
	require.NoError(t, err)
	h.engine.opts.Proxy = p
	h.rt.AddContainer(proxy.DefaultCaddyContainer, true)

	_, err = h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	_, err = h.engine.Uninstall(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, []string{"restart " + proxy.DefaultCaddyContainer}, h.rt.CallsWithPrefix("restart"))
}

func TestList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	list, err := h.engine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(h.service(t, "abandoned").Dir(), 0o755))

	list, err = h.engine.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "abandoned", list[0].Name)
	assert.Equal(t, Broken, list[0].State)
	assert.Equal(t, "blog", list[1].Name)
	assert.Equal(t, Installed, list[1].State)
}

func TestOperationsShareTheServiceLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.engine.Open(ctx, "blog")
	require.NoError(t, err)
	defer s.Close()

	_, err = h.engine.Install(ctx, "blog", blogImage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrTimeout))
	assert.Empty(t, h.rt.Calls())
}

func TestInvalidServiceName(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Install(context.Background(), "../etc", blogImage)
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
}

func TestServiceCmd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)

	res, err := h.engine.ServiceCmd(ctx, "blog", "hello", []string{"world"})
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Contains(t, h.stdout.String(), "hello from blog world")

	res, err = h.engine.ServiceCmd(ctx, "blog", "frobnicate", nil)
	require.NoError(t, err)
	assert.Equal(t, NotImplemented, res)

	_, err = h.engine.ServiceCmd(ctx, "blog", "fail", nil)
	assert.True(t, errors.Is(err, svcerr.ErrRuntime))
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())

	_, err = h.engine.ServiceCmd(ctx, "ghost", "hello", nil)
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
}

func TestServiceCmdDstop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Install(ctx, "blog", blogImage)
	require.NoError(t, err)
	h.rt.AddContainer("blog-web", true)

	res, err := h.engine.ServiceCmd(ctx, "blog", "dstop", []string{"blog-web"})
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	assert.Equal(t, []string{"stop blog-web"}, h.rt.CallsWithPrefix("stop"))
	assert.Equal(t, []string{"rm blog-web"}, h.rt.CallsWithPrefix("rm blog-web"))

	res, err = h.engine.ServiceCmd(ctx, "blog", "dstop", []string{"blog-web"})
	require.NoError(t, err)
	assert.Equal(t, NoChange, res)

	_, err = h.engine.ServiceCmd(ctx, "blog", "dstop", nil)
	assert.True(t, errors.Is(err, svcerr.ErrValidation))
}

func TestSetup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Setup(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
	for _, dir := range []string{h.layout.Services(), h.layout.Temp(), h.layout.HostVolumes(), h.layout.Locks(), h.layout.Support()} {
		assert.DirExists(t, dir)
	}
	info, err := os.Stat(h.layout.Bin())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
	assert.Equal(t, []string{"pull " + utilsImage}, h.rt.Calls())

	res, err = h.engine.Setup(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, NoChange, res)

	res, err = h.engine.Setup(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, Success, res)
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "nochange", NoChange.String())
	assert.Equal(t, "notimplemented", NotImplemented.String())
	assert.Equal(t, "broken", Broken.String())
}
