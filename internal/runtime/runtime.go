// Package runtime is the boundary to the container runtime. The engine only
// ever issues the discrete commands listed on Runtime; the docker
// implementation shells out to the docker CLI.
package runtime

import (
	"context"
	"io"
)

// Runtime is everything the lifecycle and backup code asks of the container
// runtime. Implementations attach captured command output to their errors.
type Runtime interface {
	Pull(ctx context.Context, image string) error

	VolumeExists(ctx context.Context, name string) (bool, error)
	CreateVolume(ctx context.Context, name string) error
	RemoveVolume(ctx context.Context, name string) error

	ContainerExists(ctx context.Context, name string) (bool, error)
	StopContainer(ctx context.Context, name string) error
	RemoveContainer(ctx context.Context, name string) error
	RestartContainer(ctx context.Context, name string) error

	// Run starts a container, waits for it and returns its standard output.
	Run(ctx context.Context, spec RunSpec) (string, error)
	// RunStream starts a container wired to stdin and stdout. Either may be
	// nil.
	RunStream(ctx context.Context, spec RunSpec, stdin io.Reader, stdout io.Writer) error
}

// Mount attaches a volume or host directory to a container.
type Mount struct {
	Source   string // volume name or absolute host path
	Target   string
	ReadOnly bool
}

// RunSpec describes a disposable container.
type RunSpec struct {
	Image      string
	Name       string
	Remove     bool
	Privileged bool
	User       string
	Entrypoint string
	Mounts     []Mount
	Command    []string
}
