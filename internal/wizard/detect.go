package wizard

import (
	"os"
	"os/exec"
	"path/filepath"
)

// DetectionResult holds what was auto-detected on the system.
type DetectionResult struct {
	DockerBinary string // path if found, empty otherwise
	ExistingRoot string // an installation root that already has services
	CaddyRunning bool   // a caddy proxy container is configured
	ConfigFile   string // an svcrunner.yml that would be shadowed
}

// Detector abstracts filesystem and path lookups for testing.
type Detector interface {
	LookPath(name string) (string, error)
	Stat(path string) (os.FileInfo, error)
	Glob(pattern string) ([]string, error)
}

// OSDetector uses the real OS for detection.
type OSDetector struct{}

func (OSDetector) LookPath(name string) (string, error) { return exec.LookPath(name) }
func (OSDetector) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (OSDetector) Glob(pattern string) ([]string, error) { return filepath.Glob(pattern) }

// candidateRoots are checked in order for an existing installation.
var candidateRoots = []string{"/opt/svcrunner", "/srv/svcrunner"}

// Detect scans the environment for docker and existing installations.
func Detect(d Detector) DetectionResult {
	if d == nil {
		d = OSDetector{}
	}

	result := DetectionResult{}

	if p, err := d.LookPath("docker"); err == nil {
		result.DockerBinary = p
	}

	roots := candidateRoots
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(append([]string(nil), roots...), filepath.Join(home, "svcrunner"))
	}
	for _, root := range roots {
		if info, err := d.Stat(filepath.Join(root, "services")); err == nil && info.IsDir() {
			result.ExistingRoot = root
			break
		}
	}

	// a Caddyfile in the support dir means the caddy proxy plugin is in use
	if result.ExistingRoot != "" {
		matches, _ := d.Glob(filepath.Join(result.ExistingRoot, "support", "caddy*"))
		result.CaddyRunning = len(matches) > 0
	}

	for _, p := range []string{"svcrunner.yml", "svcrunner.yaml"} {
		if _, err := d.Stat(p); err == nil {
			result.ConfigFile = p
			break
		}
	}

	return result
}
