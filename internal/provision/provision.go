// Package provision realizes the runtime state a service model needs: every
// volume exists and is owned by the user its container runs as.
package provision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/rs/zerolog"
)

// PayloadDir is where a service image keeps the files svcrunner copies out
// on install.
const PayloadDir = "/svcrunner"

// volumeMountPoint is where helper containers see the volume they work on.
const volumeMountPoint = "/tempmount"

// ImageValidator decides whether an image may be installed.
type ImageValidator interface {
	CheckImage(ctx context.Context, service, image string) error
}

// Provisioner creates and chowns service volumes.
type Provisioner struct {
	rt         runtime.Runtime
	utilsImage string
	logger     zerolog.Logger
}

// New returns a provisioner running helper containers from utilsImage.
func New(rt runtime.Runtime, utilsImage string, logger zerolog.Logger) *Provisioner {
	return &Provisioner{
		rt:         rt,
		utilsImage: utilsImage,
		logger:     logger.With().Str("component", "provision").Logger(),
	}
}

var _ ImageValidator = (*Provisioner)(nil)

// Ensure makes every volume of m exist and be owned by its subservice's user.
// Existing volumes are reused, never recreated.
func (p *Provisioner) Ensure(ctx context.Context, m *model.ServiceModel) error {
	for _, sub := range m.Subservices {
		if len(sub.Volumes) == 0 {
			continue
		}
		uid, err := p.UserID(ctx, m.ServiceName, sub.Image)
		if err != nil {
			return err
		}
		for _, b := range sub.Volumes {
			if err := p.ensureVolume(ctx, m.ServiceName, b); err != nil {
				return err
			}
			if err := p.chown(ctx, m.ServiceName, b.RuntimeVolumeName, uid); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Provisioner) ensureVolume(ctx context.Context, service string, b model.VolumeBinding) error {
	log := p.logger.With().Str("service", service).Str("volume", b.RuntimeVolumeName).Logger()

	exists, err := p.rt.VolumeExists(ctx, b.RuntimeVolumeName)
	if err != nil {
		return svcerr.WithService(err, service)
	}
	if exists {
		log.Info().Msg("reusing existing volume")
		return nil
	}
	if err := p.rt.CreateVolume(ctx, b.RuntimeVolumeName); err != nil {
		return svcerr.WithService(fmt.Errorf("creating volume %s: %w", b.RuntimeVolumeName, err), service)
	}
	log.Info().Str("mount", b.MountPath).Msg("created volume")
	return nil
}

func (p *Provisioner) chown(ctx context.Context, service, volume string, uid int) error {
	spec := runtime.RunSpec{
		Image:      p.utilsImage,
		Name:       naming.ContainerName(service, "chown"),
		Remove:     true,
		Privileged: true,
		Mounts:     []runtime.Mount{{Source: volume, Target: volumeMountPoint}},
		Command:    []string{"chown", strconv.Itoa(uid) + ":root", volumeMountPoint},
	}
	if err := p.runHelper(ctx, service, spec); err != nil {
		return fmt.Errorf("setting owner of %s to %d: %w", volume, uid, err)
	}
	p.logger.Debug().Str("service", service).Str("volume", volume).Int("uid", uid).Msg("volume ownership set")
	return nil
}

// UserID returns the numeric user an image's containers run as. Images
// running as root are rejected.
func (p *Provisioner) UserID(ctx context.Context, service, image string) (int, error) {
	out, err := p.shell(ctx, service, image, "userid", "id -u")
	if err != nil {
		return 0, fmt.Errorf("querying user of %s: %w", image, err)
	}
	uid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, svcerr.Newf(svcerr.Runtime, service, "image %s reported non-numeric user id %q", image, strings.TrimSpace(out))
	}
	if uid == 0 {
		return 0, svcerr.Newf(svcerr.Validation, service, "image %s runs as root; service containers must run as an unprivileged user", image)
	}
	return uid, nil
}

// CheckImage is the default install-time validation: the image runs as a
// non-root user and carries the svcrunner payload directory.
func (p *Provisioner) CheckImage(ctx context.Context, service, image string) error {
	if _, err := p.UserID(ctx, service, image); err != nil {
		return err
	}
	out, err := p.shell(ctx, service, image, "check",
		"if [ -d "+PayloadDir+" ]; then echo yes; else echo no; fi")
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", image, err)
	}
	if strings.TrimSpace(out) != "yes" {
		return svcerr.Newf(svcerr.Validation, service, "image %s has no %s directory; it is not a svcrunner service image", image, PayloadDir)
	}
	return nil
}

// shell runs script with /bin/sh in a disposable container of image.
func (p *Provisioner) shell(ctx context.Context, service, image, role, script string) (string, error) {
	spec := runtime.RunSpec{
		Image:      image,
		Name:       naming.ContainerName(service, role),
		Remove:     true,
		Entrypoint: "/bin/sh",
		Command:    []string{"-c", script},
	}
	if err := p.clearStale(ctx, service, spec.Name); err != nil {
		return "", err
	}
	out, err := p.rt.Run(ctx, spec)
	return out, svcerr.WithService(err, service)
}

func (p *Provisioner) runHelper(ctx context.Context, service string, spec runtime.RunSpec) error {
	if err := p.clearStale(ctx, service, spec.Name); err != nil {
		return err
	}
	_, err := p.rt.Run(ctx, spec)
	return svcerr.WithService(err, service)
}

// clearStale removes a helper container left behind by a killed run.
func (p *Provisioner) clearStale(ctx context.Context, service, name string) error {
	exists, err := p.rt.ContainerExists(ctx, name)
	if err != nil {
		return svcerr.WithService(err, service)
	}
	if !exists {
		return nil
	}
	p.logger.Warn().Str("service", service).Str("container", name).Msg("removing stale helper container")
	return svcerr.WithService(p.rt.RemoveContainer(ctx, name), service)
}
