package resolver

import (
	"sort"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
)

// Strategy reads one service definition format.
type Strategy interface {
	Metadata() Metadata
	// Detect reports whether the definition file this strategy reads is
	// present in runnerDir.
	Detect(runnerDir string) bool
	Resolve(in Input) (*model.ServiceModel, error)
}

// Metadata describes a strategy for logs and the validate command.
type Metadata struct {
	Name           string // internal key, e.g. "manifest"
	DisplayName    string // human-readable, e.g. "Compose manifest"
	DefinitionFile string // file the strategy looks for, e.g. "docker-compose.yml"
	Priority       int    // lower runs first
}

// Input is what every strategy resolves from.
type Input struct {
	RunnerDir   string
	ServiceName string
	MainImage   string
}

var registry []func() Strategy

// Register adds a strategy factory. Each strategy calls this in its init().
func Register(factory func() Strategy) {
	registry = append(registry, factory)
}

// All returns fresh instances of every registered strategy, in precedence
// order. init() order follows file names, so order comes from Priority.
func All() []Strategy {
	out := make([]Strategy, len(registry))
	for i, f := range registry {
		out[i] = f()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata().Priority < out[j].Metadata().Priority
	})
	return out
}
