// Package paths derives every on-host location svcrunner uses from one
// installation root. Nothing here touches the filesystem; directories are
// created by the lifecycle engine.
package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Layout is the installation root and its fixed top-level directories.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at root (made absolute).
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolving root %q: %w", root, err)
	}
	return Layout{Root: abs}, nil
}

func (l Layout) Services() string    { return filepath.Join(l.Root, "services") }
func (l Layout) HostVolumes() string { return filepath.Join(l.Root, "hostVolumes") }
func (l Layout) Bin() string         { return filepath.Join(l.Root, "bin") }
func (l Layout) Temp() string        { return filepath.Join(l.Root, "temp") }
func (l Layout) Locks() string       { return filepath.Join(l.Root, "locks") }
func (l Layout) Support() string     { return filepath.Join(l.Root, "support") }

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateName rejects service names that could escape the root or are not
// usable as runtime identifiers.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("service name is empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("service name %q is longer than 64 characters", name)
	}
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("service name %q must match %s and not contain \"..\"", name, validName)
	}
	return nil
}

// Service holds the derived locations of one service.
type Service struct {
	layout Layout
	name   string
}

// Service returns the paths of the named service. The name must pass ValidateName.
func (l Layout) Service(name string) (Service, error) {
	if err := ValidateName(name); err != nil {
		return Service{}, err
	}
	return Service{layout: l, name: name}, nil
}

// Name is the service name.
func (s Service) Name() string { return s.name }

// Layout is the installation the service belongs to.
func (s Service) Layout() Layout { return s.layout }

// Dir is the service's root directory; deleting it uninstalls the service.
func (s Service) Dir() string { return filepath.Join(s.layout.Services(), s.name) }

// RunnerDir holds the payload copied out of the service image: manifest,
// hook script, generated variables.
func (s Service) RunnerDir() string { return filepath.Join(s.Dir(), "runner") }

// TempDir is scratch space owned by the service.
func (s Service) TempDir() string { return filepath.Join(s.Dir(), "temp") }

// HostVolume is the service's host-local persistent storage. It lives outside
// Dir so that it survives uninstall.
func (s Service) HostVolume() string { return filepath.Join(s.layout.HostVolumes(), s.name) }

// LaunchScript is the per-service entrypoint placed in the bin directory.
func (s Service) LaunchScript() string { return filepath.Join(s.layout.Bin(), s.name) }

// ImageNameFile records the main image the service was installed from.
func (s Service) ImageNameFile() string { return filepath.Join(s.Dir(), "imagename.sh") }

// VariablesFile is the derived variable snapshot consumed by hook scripts.
func (s Service) VariablesFile() string { return filepath.Join(s.RunnerDir(), "variables.sh") }

// UtilsFile is the helper shell library generated for hook scripts.
func (s Service) UtilsFile() string { return filepath.Join(s.RunnerDir(), "utils.sh") }

// HookScript is the service's lifecycle hook and sub-command entrypoint.
func (s Service) HookScript() string { return filepath.Join(s.RunnerDir(), "servicerunner") }

// LockFile is the advisory lock serializing operations on the service. It is
// outside Dir because Dir is deleted and recreated while the lock is held.
func (s Service) LockFile() string { return filepath.Join(s.layout.Locks(), s.name+".lock") }

// Within reports whether p is inside the installation root.
func (l Layout) Within(p string) bool {
	rel, err := filepath.Rel(l.Root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
