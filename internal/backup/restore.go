package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/logging"
	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"github.com/rs/zerolog"
)

// Restore installs name from the image recorded in the archive at path and
// fills its volumes. The archive is checked completely before anything on
// the host changes; the service must not be installed.
func (p *Pipeline) Restore(ctx context.Context, name, path string) error {
	start := time.Now()
	err := p.restore(ctx, name, path)
	result := "success"
	if err != nil {
		result = "error"
	}
	p.opts.Metrics.Observe("restore", name, result, time.Since(start))
	return err
}

func (p *Pipeline) restore(ctx context.Context, name, path string) error {
	start := time.Now()
	path, err := filepath.Abs(path)
	if err != nil {
		return svcerr.New(svcerr.Filesystem, name, err).WithPath(path)
	}
	if !util.Exists(path) {
		return svcerr.Newf(svcerr.Filesystem, name, "backup archive not found").WithPath(path)
	}

	s, err := p.opts.Engine.Open(ctx, name)
	if err != nil {
		return err
	}
	defer s.Close()
	svc := s.Service()
	log := p.logger.With().Str("service", name).Logger()

	temp := svc.Layout().Temp()
	if err := os.MkdirAll(temp, 0o755); err != nil {
		return svcerr.New(svcerr.Filesystem, name, err).WithPath(temp)
	}
	stage, err := os.MkdirTemp(temp, "restore-"+name+"-")
	if err != nil {
		return svcerr.New(svcerr.Filesystem, name, err).WithPath(temp)
	}
	defer os.RemoveAll(stage)

	if err := p.opts.Codec.OpenDir(path, stage); err != nil {
		if errors.Is(err, svcerr.ErrValidation) {
			return svcerr.WithService(err, name)
		}
		return svcerr.New(svcerr.CorruptArchive, name, fmt.Errorf("unpacking archive: %w", err)).WithPath(path)
	}
	manifest, err := checkArchive(stage)
	if err != nil {
		return svcerr.WithService(err, name)
	}
	stepDone(log, "unpack archive", start)
	log.Info().Str("backup_id", manifest.BackupID).Str("image", manifest.ImageName).Time("created_at", manifest.CreatedAt).Msg("restoring")

	if util.Exists(svc.Dir()) {
		return svcerr.Newf(svcerr.Filesystem, name, "service is already installed, uninstall it first").WithPath(svc.Dir())
	}

	step := time.Now()
	res, err := s.Install(ctx, manifest.ImageName)
	if err != nil {
		if res != lifecycle.Success {
			return fmt.Errorf("installing %s: %w", manifest.ImageName, err)
		}
		// only the install end hook failed; the service is in place
		log.Warn().Err(err).Msg("install end hook failed, continuing restore")
	}
	stepDone(log, "install", step)

	m, err := s.Model()
	if err != nil {
		return err
	}
	current := m.VolumeNames()
	if len(current) != len(manifest.RuntimeVolumeNames) {
		if _, uerr := s.Uninstall(ctx); uerr != nil {
			log.Error().Err(uerr).Msg("uninstall after volume mismatch failed")
		}
		return svcerr.Newf(svcerr.StateMismatch, name,
			"image %s declares %d volumes but the backup holds %d; the service was uninstalled",
			manifest.ImageName, len(current), len(manifest.RuntimeVolumeNames))
	}

	for i, vol := range current {
		step = time.Now()
		src := volumeArchive(stage, manifest.RuntimeVolumeNames[i])
		if err := p.importVolume(ctx, name, vol, src); err != nil {
			return err
		}
		stepDone(log.With().Str("volume", vol).Logger(), "import volume", step)
	}

	step = time.Now()
	if err := p.restoreHostVolume(svc, volumeArchive(stage, hostVolumeName)); err != nil {
		return svcerr.New(svcerr.Filesystem, name, fmt.Errorf("restoring host volume: %w", err)).WithPath(svc.HostVolume())
	}
	stepDone(log, "restore host volume", step)

	if _, err := hooks.New(p.opts.Hooks, svc, "restore", filepath.Join(stage, customDir)).End(ctx); err != nil {
		return fmt.Errorf("restore end hook: %w", err)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("restore complete")
	return nil
}

// restoreHostVolume unpacks src next to the host volume and swaps it in, so
// nothing written since the backup survives.
func (p *Pipeline) restoreHostVolume(svc paths.Service, src string) error {
	dst := svc.HostVolume()
	mode := os.FileMode(0o755)
	if info, err := os.Stat(dst); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dst), "."+svc.Name()+"-restore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	if err := p.opts.Codec.OpenDir(src, tmp); err != nil {
		return err
	}
	if err := os.Chmod(tmp, mode); err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// checkArchive verifies an unpacked archive holds everything restore needs.
func checkArchive(stage string) (*model.BackupManifest, error) {
	manifest, err := model.ReadBackupManifest(filepath.Join(stage, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, svcerr.Newf(svcerr.CorruptArchive, "", "archive has no %s", manifestFile)
	}
	if err != nil {
		return nil, svcerr.New(svcerr.CorruptArchive, "", err)
	}
	if !util.IsDir(filepath.Join(stage, customDir)) {
		return nil, svcerr.Newf(svcerr.CorruptArchive, "", "archive has no %s directory", customDir)
	}
	want := append(append([]string(nil), manifest.RuntimeVolumeNames...), hostVolumeName)
	for _, vol := range want {
		if !util.Exists(volumeArchive(stage, vol)) {
			return nil, svcerr.Newf(svcerr.CorruptArchive, "", "archive has no data for volume %s", vol)
		}
	}
	return manifest, nil
}

func (p *Pipeline) importVolume(ctx context.Context, service, vol, src string) error {
	exists, err := p.opts.Runtime.VolumeExists(ctx, vol)
	if err != nil {
		return svcerr.WithService(err, service)
	}
	if !exists {
		return svcerr.Newf(svcerr.Runtime, service, "volume %s does not exist after install", vol)
	}

	r, err := p.opts.Codec.OpenFile(src)
	if err != nil {
		return svcerr.New(svcerr.CorruptArchive, service, err).WithPath(src)
	}
	defer r.Close()

	spec := runtime.RunSpec{
		Image:   p.opts.UtilsImage,
		Name:    naming.ContainerName(service, "import"),
		Remove:  true,
		Mounts:  []runtime.Mount{{Source: vol, Target: importMount}},
		Command: []string{"tar", "-C", importMount, "-xf", "-"},
	}
	out := logging.LineWriter(p.logger.With().Str("service", service).Logger(), zerolog.DebugLevel, "import output")
	defer out.Close()
	if err := p.opts.Runtime.RunStream(ctx, spec, r, out); err != nil {
		return svcerr.WithService(fmt.Errorf("importing volume %s: %w", vol, err), service)
	}
	return nil
}
