// Package proxy notifies the host's reverse proxy when services come and go.
// The proxy's own route state is managed outside svcrunner.
package proxy

import (
	"context"
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/runtime"
	"github.com/rs/zerolog"
)

// Mode selects the proxy implementation.
type Mode string

const (
	ModeNone  Mode = "none"
	ModeCaddy Mode = "caddy"
)

// DefaultCaddyContainer is the container restarted in caddy mode when none is
// configured.
const DefaultCaddyContainer = "svcrunner-proxy"

// Proxy is notified of service changes.
type Proxy interface {
	Mode() Mode
	// ServiceRemoved is called after a service has been uninstalled.
	ServiceRemoved(ctx context.Context, service string) (changed bool, err error)
}

// New returns the proxy for mode. container names the caddy container.
func New(mode Mode, container string, rt runtime.Runtime, logger zerolog.Logger) (Proxy, error) {
	switch mode {
	case ModeNone, "":
		return None{}, nil
	case ModeCaddy:
		if container == "" {
			container = DefaultCaddyContainer
		}
		return &Caddy{
			container: container,
			rt:        rt,
			logger:    logger.With().Str("component", "proxy").Logger(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown proxy mode %q (want %s or %s)", mode, ModeNone, ModeCaddy)
	}
}

// None does nothing.
type None struct{}

func (None) Mode() Mode { return ModeNone }

func (None) ServiceRemoved(context.Context, string) (bool, error) { return false, nil }

// Caddy restarts the caddy container so it reloads its routes.
type Caddy struct {
	container string
	rt        runtime.Runtime
	logger    zerolog.Logger
}

func (c *Caddy) Mode() Mode { return ModeCaddy }

func (c *Caddy) ServiceRemoved(ctx context.Context, service string) (bool, error) {
	exists, err := c.rt.ContainerExists(ctx, c.container)
	if err != nil {
		return false, err
	}
	if !exists {
		c.logger.Debug().Str("container", c.container).Msg("proxy container not present, nothing to reload")
		return false, nil
	}
	if err := c.rt.RestartContainer(ctx, c.container); err != nil {
		return false, fmt.Errorf("restarting proxy %s: %w", c.container, err)
	}
	c.logger.Info().Str("service", service).Str("container", c.container).Msg("proxy reloaded")
	return true, nil
}
