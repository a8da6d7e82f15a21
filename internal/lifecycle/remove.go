package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/resolver"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
)

// Uninstall removes the service tree and launch script. Volumes and the
// host volume are kept.
func (s *Session) Uninstall(ctx context.Context) (Result, error) {
	return s.uninstall(ctx, true)
}

// uninstall aborts on a failing start hook when strict is set; recover
// uses the lenient form since the tree it removes may be broken.
func (s *Session) uninstall(ctx context.Context, strict bool) (Result, error) {
	name := s.svc.Name()
	if !util.Exists(s.svc.Dir()) {
		if err := removeIfExists(s.svc.LaunchScript()); err != nil {
			return NoChange, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.LaunchScript())
		}
		s.logger.Info().Msg("not installed, nothing to uninstall")
		return NoChange, nil
	}

	b := hooks.New(s.e.opts.Hooks, s.svc, "uninstall")
	defer b.Close()
	if _, err := b.Start(ctx); err != nil {
		if strict {
			return NoChange, err
		}
		s.logger.Warn().Err(err).Msg("uninstall start hook failed, continuing")
	}
	if err := b.Preserve(); err != nil {
		s.logger.Warn().Err(err).Msg("could not preserve hook script, end hook will not run")
	}

	s.logger.Info().Msg("uninstalling")
	if err := os.RemoveAll(s.svc.Dir()); err != nil {
		return NoChange, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.Dir())
	}
	if err := removeIfExists(s.svc.LaunchScript()); err != nil {
		return NoChange, svcerr.New(svcerr.Filesystem, name, err).WithPath(s.svc.LaunchScript())
	}
	for _, p := range []string{s.svc.Dir(), s.svc.LaunchScript()} {
		if util.Exists(p) {
			return NoChange, svcerr.Newf(svcerr.Filesystem, name, "still present after removal").WithPath(p)
		}
	}

	if _, err := b.End(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("uninstall end hook failed")
	}
	s.notifyProxy(ctx)
	s.logger.Info().Msg("uninstalled")
	return Success, nil
}

func (s *Session) notifyProxy(ctx context.Context) {
	changed, err := s.e.opts.Proxy.ServiceRemoved(ctx, s.svc.Name())
	if err != nil {
		s.logger.Warn().Err(err).Str("proxy", string(s.e.opts.Proxy.Mode())).Msg("proxy update failed")
		return
	}
	if changed {
		s.logger.Debug().Str("proxy", string(s.e.opts.Proxy.Mode())).Msg("proxy updated")
	}
}

// Obliterate removes the service's volumes, tree, host volume and launch
// script. Anything already gone is skipped; NoChange means nothing was
// found at all.
func (s *Session) Obliterate(ctx context.Context) (Result, error) {
	name := s.svc.Name()
	found := false

	var volumes []string
	var b *hooks.Bracket
	if util.Exists(s.svc.Dir()) {
		found = true
		b = hooks.New(s.e.opts.Hooks, s.svc, "obliterate")
		defer b.Close()
		if _, err := b.Start(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("obliterate start hook failed, continuing")
		}
		if err := b.Preserve(); err != nil {
			s.logger.Warn().Err(err).Msg("could not preserve hook script, end hook will not run")
		}
		if st := s.Status(); st.State == Installed {
			volumes = st.Model.VolumeNames()
		} else {
			s.logger.Warn().Err(st.Err).Msg("cannot resolve service, its volumes are left in place")
		}
	}

	var volErrs []error
	for _, vol := range volumes {
		exists, err := s.e.opts.Runtime.VolumeExists(ctx, vol)
		if err != nil {
			volErrs = append(volErrs, svcerr.WithService(err, name))
			continue
		}
		if !exists {
			continue
		}
		found = true
		s.logger.Info().Str("volume", vol).Msg("removing volume")
		if err := s.e.opts.Runtime.RemoveVolume(ctx, vol); err != nil {
			volErrs = append(volErrs, svcerr.WithService(fmt.Errorf("removing volume %s: %w", vol, err), name))
		}
	}

	for _, p := range []string{s.svc.Dir(), s.svc.HostVolume(), s.svc.LaunchScript()} {
		if !util.Exists(p) {
			continue
		}
		found = true
		s.logger.Info().Str("path", p).Msg("removing")
		if err := os.RemoveAll(p); err != nil {
			return NoChange, svcerr.New(svcerr.Filesystem, name, err).WithPath(p)
		}
	}

	if b != nil {
		if _, err := b.End(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("obliterate end hook failed")
		}
	}

	if err := errors.Join(volErrs...); err != nil {
		return Success, err
	}
	if !found {
		s.logger.Info().Msg("nothing to obliterate")
		return NoChange, nil
	}
	s.notifyProxy(ctx)
	s.logger.Info().Msg("obliterated")
	return Success, nil
}

// Recover reinstalls the service keeping its volumes. image overrides the
// recorded main image; it is required when none is recorded.
func (s *Session) Recover(ctx context.Context, image string) (Result, error) {
	name := s.svc.Name()
	if image == "" {
		recorded, err := resolver.ReadImageName(s.svc)
		if err != nil {
			return NoChange, fmt.Errorf("no recorded image, pass one explicitly: %w", err)
		}
		image = recorded
	}
	s.logger.Info().Str("image", image).Msg("recovering")

	if util.Exists(s.svc.Dir()) {
		if _, err := s.uninstall(ctx, false); err != nil {
			return NoChange, svcerr.WithService(err, name)
		}
	}
	return s.Install(ctx, image)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
