package model

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleModel() *ServiceModel {
	return &ServiceModel{
		ServiceName: "blog",
		MainImage:   "example/blog:2",
		Subservices: []SubserviceInfo{
			{
				Name:  "blog",
				Image: "example/blog:2",
				Volumes: []VolumeBinding{
					{MountPath: "/data", RuntimeVolumeName: "svcrunner-blogdata", Label: "data"},
					{MountPath: "/config", RuntimeVolumeName: "svcrunner-blogconfig", Label: "config"},
				},
			},
			{
				Name:  "db",
				Image: "postgres:16",
				Volumes: []VolumeBinding{
					{MountPath: "/data", RuntimeVolumeName: "svcrunner-blogdata", Label: "data"},
				},
			},
		},
		ExtraImages:   []string{"redis:7", "postgres:16"},
		SchemaVersion: 2,
		Source:        SourceManifest,
	}
}

func TestServiceModelAccessors(t *testing.T) {
	m := sampleModel()
	require.NoError(t, m.Validate())

	assert.Len(t, m.Bindings(), 3)
	assert.Equal(t, []string{"svcrunner-blogdata", "svcrunner-blogconfig"}, m.VolumeNames())
	assert.Equal(t, []string{"/data", "/config"}, m.MountPaths())
	assert.Equal(t, []string{"example/blog:2", "postgres:16", "redis:7"}, m.Images())
}

func TestServiceModelValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *ServiceModel)
	}{
		{"no main image", func(m *ServiceModel) { m.MainImage = "" }},
		{"no subservices", func(m *ServiceModel) { m.Subservices = nil }},
		{"no service name", func(m *ServiceModel) { m.ServiceName = "" }},
		{"subservice without image", func(m *ServiceModel) { m.Subservices[1].Image = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := sampleModel()
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestBackupManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.yml")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	b := NewBackupManifest("id-1", sampleModel(), now)
	require.NoError(t, b.WriteFile(path))

	got, err := ReadBackupManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "example/blog:2", got.ImageName)
	assert.Equal(t, []string{"svcrunner-blogdata", "svcrunner-blogconfig"}, got.RuntimeVolumeNames)
	assert.Equal(t, 2, got.SchemaVersion)
	assert.True(t, now.Equal(got.CreatedAt))

	_, err = ReadBackupManifest(filepath.Join(t.TempDir(), "missing.yml"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
