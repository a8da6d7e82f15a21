// Package testutil provides in-memory collaborators for engine tests: a
// container runtime whose volumes are plain directories and a hook runner
// that records invocations.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/archive"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
)

// FakeImage is an image the fake runtime knows how to run.
type FakeImage struct {
	UID string
	// Payload maps paths under /svcrunner to file contents. A nil payload
	// means the image has no /svcrunner directory.
	Payload map[string]string
}

// FakeRuntime implements runtime.Runtime on the local filesystem. It
// understands exactly the container commands svcrunner issues.
type FakeRuntime struct {
	mu         sync.Mutex
	dir        string
	images     map[string]*FakeImage
	containers map[string]bool
	owners     map[string]string
	failures   map[string]error
	calls      []string
}

var _ runtime.Runtime = (*FakeRuntime)(nil)

// NewFakeRuntime returns an empty runtime storing volumes under a test
// temp directory.
func NewFakeRuntime(t *testing.T) *FakeRuntime {
	t.Helper()
	return &FakeRuntime{
		dir:        t.TempDir(),
		images:     make(map[string]*FakeImage),
		containers: make(map[string]bool),
		owners:     make(map[string]string),
		failures:   make(map[string]error),
	}
}

// AddImage registers an image with its user and payload.
func (f *FakeRuntime) AddImage(name string, img FakeImage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[name] = &img
}

// AddContainer registers a container, running or not.
func (f *FakeRuntime) AddContainer(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = running
}

// FailOn makes the call "<op> <arg>" (as listed by Calls) return err.
func (f *FakeRuntime) FailOn(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[call] = err
}

// Calls returns the calls made so far, e.g. "createvolume svcrunner-blogdata".
func (f *FakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the calls starting with prefix.
func (f *FakeRuntime) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// VolumeDir is where the named volume's contents live.
func (f *FakeRuntime) VolumeDir(name string) string {
	return filepath.Join(f.dir, "volumes", name)
}

// Volumes lists existing volumes, sorted.
func (f *FakeRuntime) Volumes() []string {
	entries, _ := os.ReadDir(filepath.Join(f.dir, "volumes"))
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// Owner returns the uid a volume was last chowned to.
func (f *FakeRuntime) Owner(volume string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owners[volume]
}

// ContainerRunning reports whether a container exists and is running.
func (f *FakeRuntime) ContainerRunning(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[name]
}

func (f *FakeRuntime) record(op, arg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := op + " " + arg
	f.calls = append(f.calls, call)
	if err, ok := f.failures[call]; ok {
		return svcerr.New(svcerr.Runtime, "", err).WithOutput("fake failure: " + call)
	}
	return nil
}

func (f *FakeRuntime) image(name string) (*FakeImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.images[name]
	if !ok {
		return nil, svcerr.Newf(svcerr.Runtime, "", "no such image: %s", name)
	}
	return img, nil
}

func (f *FakeRuntime) Pull(_ context.Context, image string) error {
	if err := f.record("pull", image); err != nil {
		return err
	}
	_, err := f.image(image)
	return err
}

func (f *FakeRuntime) VolumeExists(_ context.Context, name string) (bool, error) {
	if err := f.record("volumeexists", name); err != nil {
		return false, err
	}
	_, err := os.Stat(f.VolumeDir(name))
	return err == nil, nil
}

func (f *FakeRuntime) CreateVolume(_ context.Context, name string) error {
	if err := f.record("createvolume", name); err != nil {
		return err
	}
	return os.MkdirAll(f.VolumeDir(name), 0o755)
}

func (f *FakeRuntime) RemoveVolume(_ context.Context, name string) error {
	if err := f.record("removevolume", name); err != nil {
		return err
	}
	if _, err := os.Stat(f.VolumeDir(name)); err != nil {
		return svcerr.Newf(svcerr.Runtime, "", "no such volume: %s", name)
	}
	return os.RemoveAll(f.VolumeDir(name))
}

func (f *FakeRuntime) ContainerExists(_ context.Context, name string) (bool, error) {
	if err := f.record("containerexists", name); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[name]
	return ok, nil
}

func (f *FakeRuntime) StopContainer(_ context.Context, name string) error {
	if err := f.record("stop", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return svcerr.Newf(svcerr.Runtime, "", "no such container: %s", name)
	}
	f.containers[name] = false
	return nil
}

func (f *FakeRuntime) RemoveContainer(_ context.Context, name string) error {
	if err := f.record("rm", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

func (f *FakeRuntime) RestartContainer(_ context.Context, name string) error {
	if err := f.record("restart", name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[name]; !ok {
		return svcerr.Newf(svcerr.Runtime, "", "no such container: %s", name)
	}
	f.containers[name] = true
	return nil
}

// mountDir maps a mount source to a directory: host paths are used as is,
// volume names are created on first use like docker does.
func (f *FakeRuntime) mountDir(spec runtime.RunSpec, target string) (string, error) {
	for _, m := range spec.Mounts {
		if m.Target != target {
			continue
		}
		if filepath.IsAbs(m.Source) {
			return m.Source, nil
		}
		dir := f.VolumeDir(m.Source)
		return dir, os.MkdirAll(dir, 0o755)
	}
	return "", fmt.Errorf("fake runtime: no mount at %s", target)
}

func (f *FakeRuntime) Run(_ context.Context, spec runtime.RunSpec) (string, error) {
	if err := f.record("run", spec.Image+" "+strings.Join(spec.Command, " ")); err != nil {
		return "", err
	}
	img, err := f.image(spec.Image)
	if err != nil {
		return "", err
	}

	switch {
	case len(spec.Command) == 2 && spec.Command[0] == "-c" && spec.Command[1] == "id -u":
		return img.UID + "\n", nil

	case len(spec.Command) == 2 && spec.Command[0] == "-c" && strings.Contains(spec.Command[1], "[ -d /svcrunner ]"):
		if img.Payload == nil {
			return "no\n", nil
		}
		return "yes\n", nil

	case len(spec.Command) == 2 && spec.Command[0] == "-c" && strings.Contains(spec.Command[1], "cp -r /svcrunner/"):
		if img.Payload == nil {
			return "", svcerr.Newf(svcerr.Runtime, "", "cp: /svcrunner: no such directory")
		}
		dst, err := f.mountDir(spec, "/tempcopy")
		if err != nil {
			return "", err
		}
		return "", writePayload(dst, img.Payload)

	case len(spec.Command) == 3 && spec.Command[0] == "chown":
		dir, err := f.mountDir(spec, spec.Command[2])
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.owners[filepath.Base(dir)] = strings.TrimSuffix(spec.Command[1], ":root")
		f.mu.Unlock()
		return "", nil
	}
	return "", fmt.Errorf("fake runtime: unsupported command %q", spec.Command)
}

func (f *FakeRuntime) RunStream(_ context.Context, spec runtime.RunSpec, stdin io.Reader, stdout io.Writer) error {
	if err := f.record("stream", spec.Image+" "+strings.Join(spec.Command, " ")); err != nil {
		return err
	}
	if _, err := f.image(spec.Image); err != nil {
		return err
	}

	cmd := strings.Join(spec.Command, " ")
	switch {
	case strings.HasPrefix(cmd, "tar -C ") && strings.HasSuffix(cmd, " -cf - ."):
		dir, err := f.mountDir(spec, spec.Command[2])
		if err != nil {
			return err
		}
		return archive.WriteTar(stdout, dir)
	case strings.HasPrefix(cmd, "tar -C ") && strings.HasSuffix(cmd, " -xf -"):
		dir, err := f.mountDir(spec, spec.Command[2])
		if err != nil {
			return err
		}
		return archive.ExtractTar(stdin, dir)
	}
	return fmt.Errorf("fake runtime: unsupported streaming command %q", cmd)
}

func writePayload(dst string, payload map[string]string) error {
	for rel, content := range payload {
		path := filepath.Join(dst, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if filepath.Base(rel) == "servicerunner" {
			mode = 0o755
		}
		if err := os.WriteFile(path, []byte(content), mode); err != nil {
			return err
		}
	}
	return nil
}

// ErrInjected is a convenient error for FailOn.
var ErrInjected = errors.New("injected failure")
