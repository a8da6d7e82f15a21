package model

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupManifest is stored inside every backup archive. Restore compares it
// against the freshly installed service before overwriting any volume.
type BackupManifest struct {
	BackupID           string    `yaml:"backup_id"`
	ServiceName        string    `yaml:"service_name"`
	ImageName          string    `yaml:"image_name"`
	RuntimeVolumeNames []string  `yaml:"runtime_volume_names"`
	SchemaVersion      int       `yaml:"schema_version"`
	CreatedAt          time.Time `yaml:"created_at"`
}

// NewBackupManifest snapshots the parts of m a restore needs.
func NewBackupManifest(id string, m *ServiceModel, now time.Time) *BackupManifest {
	return &BackupManifest{
		BackupID:           id,
		ServiceName:        m.ServiceName,
		ImageName:          m.MainImage,
		RuntimeVolumeNames: m.VolumeNames(),
		SchemaVersion:      m.SchemaVersion,
		CreatedAt:          now.UTC(),
	}
}

// WriteFile stores the manifest as YAML.
func (b *BackupManifest) WriteFile(path string) error {
	data, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding backup manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing backup manifest: %w", err)
	}
	return nil
}

// ReadBackupManifest loads a manifest written by WriteFile. A missing file
// returns an error satisfying errors.Is(err, fs.ErrNotExist).
func ReadBackupManifest(path string) (*BackupManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b BackupManifest
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decoding backup manifest: %w", err)
	}
	if b.ImageName == "" {
		return nil, fmt.Errorf("backup manifest has no image name")
	}
	return &b, nil
}
