package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/naming"
	"github.com/compose-spec/compose-go/v2/format"
	composetypes "github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

func init() {
	Register(func() Strategy { return &ManifestStrategy{} })
}

var manifestNames = []string{"docker-compose.yml", "docker-compose.yaml"}

// ManifestStrategy reads a compose-style docker-compose.yml.
type ManifestStrategy struct{}

func (ms *ManifestStrategy) Metadata() Metadata {
	return Metadata{
		Name:           "manifest",
		DisplayName:    "Compose manifest",
		DefinitionFile: manifestNames[0],
		Priority:       10,
	}
}

func (ms *ManifestStrategy) Detect(runnerDir string) bool {
	return manifestPath(runnerDir) != ""
}

func manifestPath(runnerDir string) string {
	for _, name := range manifestNames {
		p := filepath.Join(runnerDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// composeService is the part of a compose service entry the engine reads.
// Everything else (ports, networks, environment) belongs to the container
// runtime and is ignored here.
type composeService struct {
	Image   string      `yaml:"image"`
	Volumes []yaml.Node `yaml:"volumes"`
}

// longVolume is the compose long volume syntax.
type longVolume struct {
	Type   string `yaml:"type"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

func (ms *ManifestStrategy) Resolve(in Input) (*model.ServiceModel, error) {
	path := manifestPath(in.RunnerDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedManifest, filepath.Base(path), err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrMalformedManifest)
	}
	root := doc.Content[0]

	version, err := schemaVersion(lookup(root, "version"))
	if err != nil {
		return nil, err
	}
	if lookup(root, "volumes") == nil {
		return nil, fmt.Errorf("%w: missing top-level volumes section", ErrMalformedManifest)
	}
	services := lookup(root, "services")
	if services == nil || services.Kind != yaml.MappingNode || len(services.Content) == 0 {
		return nil, fmt.Errorf("%w: services must be a non-empty mapping", ErrMalformedManifest)
	}

	m := &model.ServiceModel{
		ServiceName:   in.ServiceName,
		MainImage:     in.MainImage,
		SchemaVersion: version,
		Source:        model.SourceManifest,
	}

	// Content alternates key, value in document order.
	for i := 0; i+1 < len(services.Content); i += 2 {
		name := services.Content[i].Value
		var cs composeService
		if err := services.Content[i+1].Decode(&cs); err != nil {
			return nil, fmt.Errorf("%w: service %s: %v", ErrMalformedManifest, name, err)
		}
		if strings.TrimSpace(cs.Image) == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingImage, name)
		}

		sub := model.SubserviceInfo{Name: name, Image: cs.Image}
		for j := range cs.Volumes {
			b, err := binding(in.ServiceName, name, &cs.Volumes[j])
			if err != nil {
				return nil, err
			}
			sub.Volumes = append(sub.Volumes, b)
		}
		m.Subservices = append(m.Subservices, sub)
	}

	if m.MainImage == "" {
		m.MainImage = mainImageOf(m)
	}
	return m, nil
}

// mainImageOf picks the image of the subservice named after the service,
// falling back to the first declared subservice.
func mainImageOf(m *model.ServiceModel) string {
	for _, s := range m.Subservices {
		if s.Name == m.ServiceName {
			return s.Image
		}
	}
	return m.Subservices[0].Image
}

func binding(serviceName, subservice string, node *yaml.Node) (model.VolumeBinding, error) {
	var vol composetypes.ServiceVolumeConfig
	switch node.Kind {
	case yaml.ScalarNode:
		parsed, err := format.ParseVolume(node.Value)
		if err != nil {
			return model.VolumeBinding{}, fmt.Errorf("%w: service %s volume %q: %v", ErrMalformedManifest, subservice, node.Value, err)
		}
		vol = parsed
	case yaml.MappingNode:
		var lv longVolume
		if err := node.Decode(&lv); err != nil {
			return model.VolumeBinding{}, fmt.Errorf("%w: service %s volume: %v", ErrMalformedManifest, subservice, err)
		}
		vol = composetypes.ServiceVolumeConfig{Type: lv.Type, Source: lv.Source, Target: lv.Target}
	default:
		return model.VolumeBinding{}, fmt.Errorf("%w: service %s: volume entries must be strings or mappings", ErrMalformedManifest, subservice)
	}

	if vol.Type == composetypes.VolumeTypeBind {
		return model.VolumeBinding{}, fmt.Errorf("%w: service %s mounts host path %q; use a named volume",
			ErrMalformedManifest, subservice, vol.Source)
	}
	if vol.Target == "" {
		return model.VolumeBinding{}, fmt.Errorf("%w: service %s has a volume without a target", ErrMalformedManifest, subservice)
	}

	runtimeName := naming.VolumeName(serviceName, vol.Target)
	label := vol.Source
	if label == "" {
		label = runtimeName
	}
	return model.VolumeBinding{
		MountPath:         vol.Target,
		RuntimeVolumeName: runtimeName,
		Label:             label,
	}, nil
}

func schemaVersion(node *yaml.Node) (int, error) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("%w: missing version (want %d)", ErrUnsupportedVersion, SupportedSchemaVersion)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(node.Value), 64)
	if err != nil || v != float64(SupportedSchemaVersion) {
		return 0, fmt.Errorf("%w: got %q, want %d", ErrUnsupportedVersion, node.Value, SupportedSchemaVersion)
	}
	return SupportedSchemaVersion, nil
}

// lookup returns the value node for key in a mapping node.
func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
