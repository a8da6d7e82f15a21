package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blogManifest = `version: "2"
volumes:
  data:
services:
  blog:
    image: example/blog:2
    volumes:
      - data:/data
`

const multiManifest = `version: 2
volumes:
  db:
services:
  web:
    image: example/web:1
    volumes:
      - /srv/www
      - type: volume
        source: uploads
        target: /var/uploads
  db:
    image: postgres:16
    volumes:
      - db:/var/lib/postgresql/data
  cache:
    image: redis:7
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestResolveBlogManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yml", blogManifest)

	m, ok, err := Resolve(Input{RunnerDir: dir, ServiceName: "blog", MainImage: "example/blog:2"})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, model.SourceManifest, m.Source)
	assert.Equal(t, 2, m.SchemaVersion)
	require.Len(t, m.Subservices, 1)
	assert.Equal(t, "blog", m.Subservices[0].Name)
	require.Len(t, m.Bindings(), 1)
	assert.Equal(t, model.VolumeBinding{
		MountPath:         "/data",
		RuntimeVolumeName: "svcrunner-blogdata",
		Label:             "data",
	}, m.Bindings()[0])
}

func TestResolveMultiServiceOrderAndDeterminism(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yaml", multiManifest)
	in := Input{RunnerDir: dir, ServiceName: "site"}

	first, ok, err := Resolve(in)
	require.NoError(t, err)
	require.True(t, ok)

	var names []string
	for _, s := range first.Subservices {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"web", "db", "cache"}, names)
	assert.Equal(t, "example/web:1", first.MainImage)
	assert.Equal(t, []string{
		"svcrunner-sitesrvwww",
		"svcrunner-sitevaruploads",
		"svcrunner-sitevarlibpostgresqldata",
	}, first.VolumeNames())
	assert.Equal(t, "svcrunner-sitesrvwww", first.Subservices[0].Volumes[0].Label)
	assert.Equal(t, "uploads", first.Subservices[0].Volumes[1].Label)

	for i := 0; i < 5; i++ {
		again, _, err := Resolve(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     error
	}{
		{
			name:     "version 1",
			manifest: "version: 1\nvolumes:\nservices:\n  blog:\n    image: example/blog\n",
			want:     ErrUnsupportedVersion,
		},
		{
			name:     "no version",
			manifest: "volumes:\nservices:\n  blog:\n    image: example/blog\n",
			want:     ErrUnsupportedVersion,
		},
		{
			name:     "no volumes section",
			manifest: "version: 2\nservices:\n  blog:\n    image: example/blog\n",
			want:     ErrMalformedManifest,
		},
		{
			name:     "empty services",
			manifest: "version: 2\nvolumes:\nservices: {}\n",
			want:     ErrMalformedManifest,
		},
		{
			name:     "missing image",
			manifest: "version: 2\nvolumes:\nservices:\n  blog:\n    volumes:\n      - /data\n",
			want:     ErrMissingImage,
		},
		{
			name:     "bind mount",
			manifest: "version: 2\nvolumes:\nservices:\n  blog:\n    image: example/blog\n    volumes:\n      - ./data:/data\n",
			want:     ErrMalformedManifest,
		},
		{
			name:     "not yaml",
			manifest: "version: [2\n",
			want:     ErrMalformedManifest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "docker-compose.yml", tt.manifest)

			m, ok, err := Resolve(Input{RunnerDir: dir, ServiceName: "blog", MainImage: "example/blog"})
			require.Error(t, err)
			assert.False(t, ok)
			assert.Nil(t, m)
			assert.True(t, errors.Is(err, svcerr.ErrResolution), "got %v", err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestResolveLegacy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "servicecfg.sh", `# legacy definition
VOLUMES=("/data" "/config")
EXTRACONTAINERS=("redis:7")
`)

	m, ok, err := Resolve(Input{RunnerDir: dir, ServiceName: "hello", MainImage: "example/hello"})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, model.SourceLegacy, m.Source)
	assert.Equal(t, 1, m.SchemaVersion)
	require.Len(t, m.Subservices, 1)
	assert.Equal(t, "hello", m.Subservices[0].Name)
	assert.Equal(t, []string{"svcrunner-hellodata", "svcrunner-helloconfig"}, m.VolumeNames())
	assert.Equal(t, []string{"example/hello", "redis:7"}, m.Images())
}

func TestResolveLegacyNeedsImage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "servicecfg.sh", "VOLUMES=()\n")

	_, _, err := Resolve(Input{RunnerDir: dir, ServiceName: "hello"})
	assert.True(t, errors.Is(err, ErrMissingImage))
}

func TestResolveManifestTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yml", blogManifest)
	writeFile(t, dir, "servicecfg.sh", "VOLUMES=(\"/other\")\n")

	m, _, err := Resolve(Input{RunnerDir: dir, ServiceName: "blog", MainImage: "example/blog:2"})
	require.NoError(t, err)
	assert.Equal(t, model.SourceManifest, m.Source)

	meta, ok := Detected(dir)
	require.True(t, ok)
	assert.Equal(t, "manifest", meta.Name)
}

func TestResolveNoDefinition(t *testing.T) {
	dir := t.TempDir()

	m, ok, err := Resolve(Input{RunnerDir: dir, ServiceName: "blog"})
	assert.Nil(t, m)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrNoDefinition))
	assert.Equal(t, svcerr.Resolution, svcerr.KindOf(err))

	_, found := Detected(dir)
	assert.False(t, found)
}

func TestAllOrdersByPriority(t *testing.T) {
	var names []string
	for _, s := range All() {
		names = append(names, s.Metadata().Name)
	}
	assert.Equal(t, []string{"manifest", "legacy"}, names)
}
