package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/ThomasCrouzet/svcrunner/internal/util"
)

// Setup creates the installation root and pulls the utils image. An existing
// root is left alone unless force is set.
func (e *Engine) Setup(ctx context.Context, force bool) (Result, error) {
	layout := e.opts.Layout
	if util.IsDir(layout.Root) && !force {
		e.logger.Info().Str("root", layout.Root).Msg("root already exists, use --force to redo setup")
		return NoChange, nil
	}

	dirs := []struct {
		path string
		mode os.FileMode
	}{
		{layout.Root, 0o755},
		{layout.Bin(), 0o700},
		{layout.Services(), 0o755},
		{layout.Temp(), 0o755},
		{layout.HostVolumes(), 0o755},
		{layout.Locks(), 0o755},
		{layout.Support(), 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.mode); err != nil {
			return NoChange, svcerr.New(svcerr.Filesystem, "", err).WithPath(d.path)
		}
		// MkdirAll leaves existing directories and the umask alone
		if err := os.Chmod(d.path, d.mode); err != nil {
			return NoChange, svcerr.New(svcerr.Filesystem, "", err).WithPath(d.path)
		}
	}

	if e.opts.UtilsImage != "" {
		e.logger.Info().Str("image", e.opts.UtilsImage).Msg("pulling utils image")
		if err := e.opts.Runtime.Pull(ctx, e.opts.UtilsImage); err != nil {
			return Success, fmt.Errorf("pulling utils image: %w", err)
		}
	}
	e.logger.Info().Str("root", layout.Root).Msg("setup complete")
	return Success, nil
}
