// Package backup snapshots a service into one encrypted archive and restores
// it onto a clean host.
//
// The archive is a sealed tree:
//
//	backup.yml
//	custom/                          written by the service's backup hook
//	volumes/<volume>.tar.zst.age     one per runtime volume
//	volumes/hostvolume.tar.zst.age   the host-local volume
package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/archive"
	"github.com/ThomasCrouzet/svcrunner/internal/hooks"
	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/metrics"
	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	manifestFile   = "backup.yml"
	customDir      = "custom"
	volumesDir     = "volumes"
	hostVolumeName = "hostvolume"
	outerName      = "backup" + archive.Extension

	exportMount = "/src"
	importMount = "/dst"
)

// Options wires a Pipeline. Every field but Metrics and Now is required.
type Options struct {
	Engine     *lifecycle.Engine
	Runtime    runtime.Runtime
	Hooks      hooks.Runner
	Codec      *archive.Codec
	Metrics    *metrics.Recorder
	Logger     zerolog.Logger
	UtilsImage string
	Now        func() time.Time
}

// Pipeline runs backups and restores under the service lock.
type Pipeline struct {
	opts   Options
	logger zerolog.Logger
}

// New returns a pipeline for opts.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Engine == nil:
		return nil, errors.New("backup: engine is required")
	case opts.Runtime == nil:
		return nil, errors.New("backup: runtime is required")
	case opts.Hooks == nil:
		return nil, errors.New("backup: hook runner is required")
	case opts.Codec == nil:
		return nil, errors.New("backup: codec is required")
	case opts.UtilsImage == "":
		return nil, errors.New("backup: utils image is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "backup").Logger(),
	}, nil
}

// Summary describes a finished backup.
type Summary struct {
	Path     string
	BackupID string
	Size     int64
	Volumes  int
	Elapsed  time.Duration
}

// Backup writes name's archive to dest, which must not exist.
func (p *Pipeline) Backup(ctx context.Context, name, dest string) (*Summary, error) {
	start := time.Now()
	sum, err := p.backup(ctx, name, dest)
	result := "success"
	if err != nil {
		result = "error"
	}
	p.opts.Metrics.Observe("backup", name, result, time.Since(start))
	return sum, err
}

func (p *Pipeline) backup(ctx context.Context, name, dest string) (*Summary, error) {
	start := time.Now()
	dest, err := filepath.Abs(dest)
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(dest)
	}
	if util.Exists(dest) {
		return nil, svcerr.Newf(svcerr.Filesystem, name, "backup destination already exists").WithPath(dest)
	}

	s, err := p.opts.Engine.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	svc := s.Service()
	log := p.logger.With().Str("service", name).Logger()

	st := s.Status()
	if st.State != lifecycle.Installed {
		return nil, svcerr.Newf(svcerr.Validation, name, "service is %s, only installed services can be backed up", st.State)
	}
	m := st.Model

	temp := svc.Layout().Temp()
	if err := os.MkdirAll(temp, 0o755); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(temp)
	}
	archiveDir, err := os.MkdirTemp(temp, "archive-"+name+"-")
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(temp)
	}
	defer os.RemoveAll(archiveDir)
	stage, err := os.MkdirTemp(temp, "backup-"+name+"-")
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(temp)
	}
	defer os.RemoveAll(stage)

	manifest := model.NewBackupManifest(uuid.NewString(), m, p.opts.Now())
	if err := manifest.WriteFile(filepath.Join(stage, manifestFile)); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(stage)
	}
	custom := filepath.Join(stage, customDir)
	volumes := filepath.Join(stage, volumesDir)
	for _, dir := range []string{custom, volumes} {
		// hooks and helper containers run as the service user
		if err := mkdirOpen(dir); err != nil {
			return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(dir)
		}
	}
	stepDone(log, "prepare", start)

	bracket := hooks.New(p.opts.Hooks, svc, "backup", custom)
	step := time.Now()
	if _, err := bracket.Start(ctx); err != nil {
		return nil, fmt.Errorf("backup start hook: %w", err)
	}
	stepDone(log, "start hook", step)

	for _, vol := range manifest.RuntimeVolumeNames {
		step = time.Now()
		if err := p.exportVolume(ctx, name, vol, volumeArchive(stage, vol)); err != nil {
			return nil, err
		}
		stepDone(log.With().Str("volume", vol).Logger(), "export volume", step)
	}

	step = time.Now()
	if !util.IsDir(svc.HostVolume()) {
		log.Warn().Str("path", svc.HostVolume()).Msg("host volume missing, backing up an empty one")
		if err := os.MkdirAll(svc.HostVolume(), 0o755); err != nil {
			return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(svc.HostVolume())
		}
	}
	if err := p.opts.Codec.SealDir(svc.HostVolume(), volumeArchive(stage, hostVolumeName)); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, fmt.Errorf("sealing host volume: %w", err)).WithPath(svc.HostVolume())
	}
	stepDone(log, "seal host volume", step)

	step = time.Now()
	if _, err := bracket.End(ctx); err != nil {
		return nil, fmt.Errorf("backup end hook: %w", err)
	}
	stepDone(log, "end hook", step)

	step = time.Now()
	outer := filepath.Join(archiveDir, outerName)
	if err := p.opts.Codec.SealDir(stage, outer); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, fmt.Errorf("sealing archive: %w", err)).WithPath(outer)
	}
	stepDone(log, "seal archive", step)

	step = time.Now()
	if err := moveFile(outer, dest); err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, fmt.Errorf("moving archive into place: %w", err)).WithPath(dest)
	}
	stepDone(log, "move archive", step)

	info, err := os.Stat(dest)
	if err != nil {
		return nil, svcerr.New(svcerr.Filesystem, name, err).WithPath(dest)
	}
	p.opts.Metrics.BackupSize(name, info.Size())
	sum := &Summary{
		Path:     dest,
		BackupID: manifest.BackupID,
		Size:     info.Size(),
		Volumes:  len(manifest.RuntimeVolumeNames),
		Elapsed:  time.Since(start),
	}
	log.Info().
		Str("path", dest).
		Str("backup_id", sum.BackupID).
		Str("size", humanize.Bytes(uint64(sum.Size))).
		Dur("elapsed", sum.Elapsed).
		Msg("backup complete")
	return sum, nil
}

// exportVolume streams the contents of vol through the codec into path. A
// volume that has vanished since resolution is stored empty so the archive
// stays restorable.
func (p *Pipeline) exportVolume(ctx context.Context, service, vol, path string) error {
	exists, err := p.opts.Runtime.VolumeExists(ctx, vol)
	if err != nil {
		return svcerr.WithService(err, service)
	}
	w, err := p.opts.Codec.Create(path)
	if err != nil {
		return svcerr.New(svcerr.Filesystem, service, err).WithPath(path)
	}
	if !exists {
		p.logger.Warn().Str("service", service).Str("volume", vol).Msg("volume no longer exists, storing it empty")
		if err := tar.NewWriter(w).Close(); err != nil {
			w.Close()
			return svcerr.New(svcerr.Filesystem, service, err).WithPath(path)
		}
		return closeSealed(w, service, path)
	}

	spec := runtime.RunSpec{
		Image:   p.opts.UtilsImage,
		Name:    naming.ContainerName(service, "export"),
		Remove:  true,
		Mounts:  []runtime.Mount{{Source: vol, Target: exportMount, ReadOnly: true}},
		Command: []string{"tar", "-C", exportMount, "-cf", "-", "."},
	}
	if err := p.opts.Runtime.RunStream(ctx, spec, nil, w); err != nil {
		w.Close()
		return svcerr.WithService(fmt.Errorf("exporting volume %s: %w", vol, err), service)
	}
	return closeSealed(w, service, path)
}

func closeSealed(w interface{ Close() error }, service, path string) error {
	if err := w.Close(); err != nil {
		return svcerr.New(svcerr.Filesystem, service, err).WithPath(path)
	}
	return nil
}

func volumeArchive(stage, vol string) string {
	return filepath.Join(stage, volumesDir, vol+archive.Extension)
}

func mkdirOpen(dir string) error {
	if err := os.Mkdir(dir, 0o777); err != nil {
		return err
	}
	return os.Chmod(dir, 0o777)
}

func stepDone(log zerolog.Logger, step string, start time.Time) {
	log.Debug().Str("step", step).Dur("elapsed", time.Since(start)).Msg("step done")
}
