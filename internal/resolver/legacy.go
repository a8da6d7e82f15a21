package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/ThomasCrouzet/svcrunner/internal/shvars"
)

func init() {
	Register(func() Strategy { return &LegacyStrategy{} })
}

const legacyFile = "servicecfg.sh"

// LegacyStrategy reads the flat servicecfg.sh format: a VOLUMES list of mount
// paths for the main container, an EXTRACONTAINERS list of images to pull
// alongside it, and a VERSION scalar.
type LegacyStrategy struct{}

func (ls *LegacyStrategy) Metadata() Metadata {
	return Metadata{
		Name:           "legacy",
		DisplayName:    "Legacy servicecfg.sh",
		DefinitionFile: legacyFile,
		Priority:       20,
	}
}

func (ls *LegacyStrategy) Detect(runnerDir string) bool {
	info, err := os.Stat(filepath.Join(runnerDir, legacyFile))
	return err == nil && !info.IsDir()
}

func (ls *LegacyStrategy) Resolve(in Input) (*model.ServiceModel, error) {
	cfg, err := shvars.Read(filepath.Join(in.RunnerDir, legacyFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", legacyFile, err)
	}

	version, err := strconv.Atoi(cfg.StringOr("VERSION", "1"))
	if err != nil {
		return nil, fmt.Errorf("%w: VERSION in %s is not a number", ErrMalformedManifest, legacyFile)
	}
	if in.MainImage == "" {
		return nil, fmt.Errorf("%w: %s (legacy definitions take the image from the install record)", ErrMissingImage, in.ServiceName)
	}

	main := model.SubserviceInfo{Name: in.ServiceName, Image: in.MainImage}
	for _, mount := range cfg.List("VOLUMES") {
		name := naming.VolumeName(in.ServiceName, mount)
		main.Volumes = append(main.Volumes, model.VolumeBinding{
			MountPath:         mount,
			RuntimeVolumeName: name,
			Label:             name,
		})
	}

	return &model.ServiceModel{
		ServiceName:   in.ServiceName,
		MainImage:     in.MainImage,
		Subservices:   []model.SubserviceInfo{main},
		ExtraImages:   cfg.List("EXTRACONTAINERS"),
		SchemaVersion: version,
		Source:        model.SourceLegacy,
	}, nil
}
