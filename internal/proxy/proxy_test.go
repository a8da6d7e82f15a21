package proxy

import (
	"context"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsVariant(t *testing.T) {
	rt := testutil.NewFakeRuntime(t)

	tests := []struct {
		mode    Mode
		want    Mode
		wantErr bool
	}{
		{mode: "", want: ModeNone},
		{mode: ModeNone, want: ModeNone},
		{mode: ModeCaddy, want: ModeCaddy},
		{mode: "nginx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := New(tt.mode, "", rt, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Mode())
		})
	}
}

func TestCaddyRestartsExistingContainer(t *testing.T) {
	rt := testutil.NewFakeRuntime(t)
	p, err := New(ModeCaddy, "", rt, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	changed, err := p.ServiceRemoved(ctx, "blog")
	require.NoError(t, err)
	assert.False(t, changed)

	rt.AddContainer(DefaultCaddyContainer, false)
	changed, err = p.ServiceRemoved(ctx, "blog")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, rt.ContainerRunning(DefaultCaddyContainer))
}

func TestNoneIsNoop(t *testing.T) {
	changed, err := None{}.ServiceRemoved(context.Background(), "blog")
	assert.NoError(t, err)
	assert.False(t, changed)
}
