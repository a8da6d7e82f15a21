package ui

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/ThomasCrouzet/svcrunner/internal/lock"
	"github.com/ThomasCrouzet/svcrunner/internal/resolver"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/stretchr/testify/assert"
)

func TestSuggest(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"broken service", fmt.Errorf("service blog is %w: x", lifecycle.ErrBroken), "try: svcrunner recover <service>"},
		{"broken named service", svcerr.New(svcerr.Resolution, "blog", fmt.Errorf("%w: no manifest", lifecycle.ErrBroken)), "try: svcrunner recover blog"},
		{"message mentioning broken", fmt.Errorf("pipe is broken"), ""},
		{"lock timeout", svcerr.New(svcerr.Filesystem, "blog", fmt.Errorf("%w after 1s", lock.ErrTimeout)), "service lock"},
		{"no definition", svcerr.New(svcerr.Resolution, "blog", resolver.ErrNoDefinition), "docker-compose.yml"},
		{"runtime", svcerr.Newf(svcerr.Runtime, "blog", "docker pull exited with code 1"), "docker info"},
		{"filesystem", svcerr.Newf(svcerr.Filesystem, "blog", "exists"), "svcrunner status blog"},
		{"corrupt", svcerr.Newf(svcerr.CorruptArchive, "", "no backup.yml"), "another backup"},
		{"plain", fmt.Errorf("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	Report(&buf, "Install failed", svcerr.Newf(svcerr.Runtime, "blog", "docker pull exited with code 1").WithOutput("manifest unknown"))

	out := buf.String()
	assert.Contains(t, out, "Install failed")
	assert.Contains(t, out, "manifest unknown")
	assert.Contains(t, out, "Hint:")
}
