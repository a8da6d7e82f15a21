package runtime

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/rs/zerolog"
)

// Docker drives the docker CLI.
type Docker struct {
	binary string
	logger zerolog.Logger
}

// NewDocker returns a Runtime using the docker binary at binary (looked up on
// PATH when it has no slash).
func NewDocker(binary string, logger zerolog.Logger) *Docker {
	if binary == "" {
		binary = "docker"
	}
	return &Docker{
		binary: binary,
		logger: logger.With().Str("component", "runtime").Logger(),
	}
}

var _ Runtime = (*Docker)(nil)

func (d *Docker) Pull(ctx context.Context, image string) error {
	_, err := d.output(ctx, "pull", "-q", image)
	return err
}

func (d *Docker) VolumeExists(ctx context.Context, name string) (bool, error) {
	out, err := d.output(ctx, "volume", "ls", "-q", "--filter", "name="+name)
	if err != nil {
		return false, err
	}
	return containsLine(out, name), nil
}

func (d *Docker) CreateVolume(ctx context.Context, name string) error {
	_, err := d.output(ctx, "volume", "create", name)
	return err
}

func (d *Docker) RemoveVolume(ctx context.Context, name string) error {
	_, err := d.output(ctx, "volume", "rm", name)
	return err
}

func (d *Docker) ContainerExists(ctx context.Context, name string) (bool, error) {
	out, err := d.output(ctx, "ps", "-a", "--filter", "name="+name, "--format", "{{.Names}}")
	if err != nil {
		return false, err
	}
	return containsLine(out, name), nil
}

func (d *Docker) StopContainer(ctx context.Context, name string) error {
	_, err := d.output(ctx, "stop", name)
	return err
}

func (d *Docker) RemoveContainer(ctx context.Context, name string) error {
	_, err := d.output(ctx, "rm", "-f", name)
	return err
}

func (d *Docker) RestartContainer(ctx context.Context, name string) error {
	_, err := d.output(ctx, "restart", name)
	return err
}

func (d *Docker) Run(ctx context.Context, spec RunSpec) (string, error) {
	return d.output(ctx, RunArgs(spec, false)...)
}

func (d *Docker) RunStream(ctx context.Context, spec RunSpec, stdin io.Reader, stdout io.Writer) error {
	args := RunArgs(spec, stdin != nil)
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	d.logger.Debug().Strs("args", args).Msg("docker")
	if err := cmd.Run(); err != nil {
		return d.fail(args, err, stderr.String())
	}
	return nil
}

// RunArgs builds the docker run argument list for spec.
func RunArgs(spec RunSpec, interactive bool) []string {
	args := []string{"run"}
	if spec.Remove {
		args = append(args, "--rm")
	}
	if interactive {
		args = append(args, "-i")
	}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	if spec.Privileged {
		args = append(args, "--privileged")
	}
	if spec.User != "" {
		args = append(args, "--user", spec.User)
	}
	if spec.Entrypoint != "" {
		args = append(args, "--entrypoint", spec.Entrypoint)
	}
	for _, m := range spec.Mounts {
		v := m.Source + ":" + m.Target
		if m.ReadOnly {
			v += ":ro"
		}
		args = append(args, "-v", v)
	}
	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

func (d *Docker) output(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.logger.Debug().Strs("args", args).Msg("docker")
	if err := cmd.Run(); err != nil {
		return stdout.String(), d.fail(args, err, stderr.String()+stdout.String())
	}
	return stdout.String(), nil
}

func (d *Docker) fail(args []string, err error, output string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = fmt.Errorf("docker %s exited with code %d", args[0], exitErr.ExitCode())
	} else {
		err = fmt.Errorf("running docker %s: %w", args[0], err)
	}
	return svcerr.New(svcerr.Runtime, "", err).WithOutput(output)
}

func containsLine(out, want string) bool {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == want {
			return true
		}
	}
	return false
}
