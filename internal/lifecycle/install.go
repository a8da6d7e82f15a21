package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/provision"
	"github.com/ThomasCrouzet/svcrunner/internal/resolver"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"golang.org/x/sync/errgroup"
)

// payloadMount is where the staging directory appears in the copy container.
const payloadMount = "/tempcopy"

// Install takes the service from Absent to Installed. Any failure after the
// service tree was created removes it again before returning.
func (s *Session) Install(ctx context.Context, image string) (Result, error) {
	name := s.svc.Name()
	if image == "" {
		return NoChange, svcerr.Newf(svcerr.Validation, name, "no image given")
	}
	if util.Exists(s.svc.Dir()) {
		return NoChange, svcerr.Newf(svcerr.Filesystem, name, "service is already installed").WithPath(s.svc.Dir())
	}

	s.logger.Info().Str("image", image).Msg("installing")
	if err := s.e.opts.Runtime.Pull(ctx, image); err != nil {
		return NoChange, svcerr.WithService(fmt.Errorf("pulling %s: %w", image, err), name)
	}
	if err := s.e.opts.Validator.CheckImage(ctx, name, image); err != nil {
		return NoChange, err
	}

	rollback, err := s.recreate(ctx, image, false)
	if err != nil {
		s.rollback(rollback)
		return NoChange, err
	}

	if _, err := hooks.New(s.e.opts.Hooks, s.svc, "install").End(ctx); err != nil {
		return Success, err
	}
	s.logger.Info().Msg("installed")
	return Success, nil
}

// Update rebuilds an installed service's tree from a freshly pulled image.
// If that fails after the old tree is gone, the tree is removed and the
// service must be recovered; volumes are never touched.
func (s *Session) Update(ctx context.Context) (Result, error) {
	m, err := s.Model()
	if err != nil {
		return NoChange, err
	}
	image := m.MainImage
	b := hooks.New(s.e.opts.Hooks, s.svc, "update")
	if _, err := b.Start(ctx); err != nil {
		return NoChange, err
	}

	s.logger.Info().Str("image", image).Msg("updating")
	if err := s.e.opts.Runtime.Pull(ctx, image); err != nil {
		return NoChange, svcerr.WithService(fmt.Errorf("pulling %s: %w", image, err), s.svc.Name())
	}
	rollback, err := s.recreate(ctx, image, true)
	if err != nil {
		s.rollback(rollback)
		return NoChange, fmt.Errorf("%w (volumes kept; run: svcrunner recover %s %s)", err, s.svc.Name(), image)
	}
	if _, err := b.End(ctx); err != nil {
		return Success, err
	}
	s.logger.Info().Msg("updated")
	return Success, nil
}

func (s *Session) rollback(rollback func() error) {
	if rollback == nil {
		return
	}
	if err := rollback(); err != nil {
		s.logger.Error().Err(err).Msg("rollback failed; service may be left broken")
		return
	}
	s.logger.Warn().Msg("rolled back partial install")
}

// recreate replaces the service tree with the payload of image and realizes
// everything the resolved model needs. The payload is resolved while still
// staged, so an unusable definition fails before the service directory is
// touched and the returned rollback is nil. Once the tree has been replaced
// the rollback removes it and the launch script; volumes are never removed.
func (s *Session) recreate(ctx context.Context, image string, updating bool) (func() error, error) {
	name := s.svc.Name()
	layout := s.svc.Layout()
	for _, dir := range []string{layout.Services(), layout.Temp(), layout.HostVolumes()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(dir)
		}
	}
	if err := os.MkdirAll(layout.Bin(), 0o700); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(layout.Bin())
	}

	staging, err := s.stagePayload(ctx, image)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	m, _, err := resolver.Resolve(resolver.Input{RunnerDir: staging, ServiceName: name, MainImage: image})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("source", string(m.Source)).Int("subservices", len(m.Subservices)).Msg("resolved definition")

	rollback := func() error {
		var errs []error
		if err := os.RemoveAll(s.svc.Dir()); err != nil {
			errs = append(errs, err)
		}
		if err := os.Remove(s.svc.LaunchScript()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	if updating {
		s.logger.Info().Str("dir", s.svc.Dir()).Msg("replacing service tree")
	}
	if err := os.RemoveAll(s.svc.Dir()); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.Dir())
	}
	if err := os.MkdirAll(s.svc.Dir(), 0o755); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.Dir())
	}
	if err := os.Rename(staging, s.svc.RunnerDir()); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.RunnerDir())
	}
	if err := os.Chmod(s.svc.RunnerDir(), 0o755); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.RunnerDir())
	}
	if err := os.MkdirAll(s.svc.TempDir(), 0o777); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.TempDir())
	}
	if util.IsDir(s.svc.HostVolume()) {
		s.logger.Info().Str("path", s.svc.HostVolume()).Msg("reusing existing host volume")
	} else if err := os.MkdirAll(s.svc.HostVolume(), 0o755); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.HostVolume())
	}

	if err := resolver.WriteImageName(s.svc, image); err != nil {
		return rollback, err
	}
	if err := resolver.WriteVariables(s.svc, m, s.e.opts.Now()); err != nil {
		return rollback, err
	}
	if err := s.pullImages(ctx, m); err != nil {
		return rollback, err
	}
	if err := writeUtils(s.svc); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.UtilsFile())
	}
	if err := writeLaunchScript(s.svc, s.e.opts.Launcher); err != nil {
		return rollback, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.LaunchScript())
	}
	if err := s.e.opts.Provisioner.Ensure(ctx, m); err != nil {
		return rollback, err
	}
	s.e.opts.Metrics.Volumes(name, len(m.VolumeNames()))
	return rollback, nil
}

// stagePayload copies /svcrunner out of image into a new directory under the
// installation's temp directory and returns it.
func (s *Session) stagePayload(ctx context.Context, image string) (string, error) {
	name := s.svc.Name()
	staging, err := os.MkdirTemp(s.svc.Layout().Temp(), "payload-"+name+"-")
	if err != nil {
		return "", svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.Layout().Temp())
	}
	// the copy runs as the image's unprivileged user
	if err := os.Chmod(staging, 0o777); err != nil {
		os.RemoveAll(staging)
		return "", svcerr.New(svcerr.Filesystem, name, err).WithPath(staging)
	}

	_, err = s.e.opts.Runtime.Run(ctx, runtime.RunSpec{
		Image:      image,
		Name:       naming.ContainerName(name, "payload"),
		Remove:     true,
		Entrypoint: "/bin/sh",
		Mounts:     []runtime.Mount{{Source: staging, Target: payloadMount}},
		Command: []string{"-c", fmt.Sprintf("cp -r %s/* %s/ && chmod a+rx %s/*",
			provision.PayloadDir, payloadMount, payloadMount)},
	})
	if err != nil {
		os.RemoveAll(staging)
		return "", svcerr.WithService(fmt.Errorf("copying service payload out of %s: %w", image, err), name)
	}
	return staging, nil
}

// pullImages pulls every image of m other than the main one, which the
// caller has already pulled.
func (s *Session) pullImages(ctx context.Context, m *model.ServiceModel) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.e.opts.PullParallelism)
	for _, image := range m.Images() {
		if image == m.MainImage {
			continue
		}
		g.Go(func() error {
			s.logger.Debug().Str("image", image).Msg("pulling")
			if err := s.e.opts.Runtime.Pull(gctx, image); err != nil {
				return svcerr.WithService(fmt.Errorf("pulling %s: %w", image, err), m.ServiceName)
			}
			return nil
		})
	}
	return g.Wait()
}

const utilsScript = `#!/bin/bash
# %s
# svcrunner generated helpers for servicerunner, do not edit.

RUNNERDIR="$(cd "$(dirname "${BASH_SOURCE[0]}")" && pwd)"
source "${RUNNERDIR}/variables.sh"

die() {
   echo "$*" >&2
   exit 1
}

container_exists() {
   docker ps -a --format '{{.Names}}' | grep -qx "$1"
}

container_running() {
   docker ps --format '{{.Names}}' | grep -qx "$1"
}

# run_main runs a command in a fresh main container with the service volumes.
run_main() {
   docker run --rm "${DOCKEROPTS[@]}" "${IMAGENAME}" "$@"
}
`

func writeUtils(svc paths.Service) error {
	path := svc.UtilsFile()
	return os.WriteFile(path, []byte(fmt.Sprintf(utilsScript, path)), 0o755)
}

// writeLaunchScript installs bin/<name>, which forwards to servicecmd.
func writeLaunchScript(svc paths.Service, launcher string) error {
	path := svc.LaunchScript()
	script := fmt.Sprintf("#!/bin/sh\nexec %s servicecmd %s \"$@\"\n", launcher, svc.Name())
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(script), 0o700); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
