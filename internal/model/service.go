package model

import (
	"errors"
	"fmt"
)

// Source identifies which definition format produced a ServiceModel.
type Source string

const (
	SourceManifest Source = "manifest"
	SourceLegacy   Source = "legacy"
)

// ServiceModel is the resolved shape of one service: its containers and the
// runtime volumes they mount. It is derived from the definition on disk for
// every operation and never cached.
type ServiceModel struct {
	ServiceName   string
	MainImage     string
	Subservices   []SubserviceInfo
	ExtraImages   []string // pulled alongside, not bound to volumes
	SchemaVersion int
	Source        Source
}

// SubserviceInfo is one container role within a service. The main
// subservice is named after the service itself.
type SubserviceInfo struct {
	Name    string
	Image   string
	Volumes []VolumeBinding
}

// VolumeBinding maps a mount path inside a container to a runtime volume.
type VolumeBinding struct {
	MountPath         string
	RuntimeVolumeName string
	Label             string
}

// Validate checks the invariants every successfully resolved model holds.
func (m *ServiceModel) Validate() error {
	if m.ServiceName == "" {
		return errors.New("service name is empty")
	}
	if m.MainImage == "" {
		return errors.New("main image is empty")
	}
	if len(m.Subservices) == 0 {
		return errors.New("no subservices defined")
	}
	for _, s := range m.Subservices {
		if s.Image == "" {
			return fmt.Errorf("subservice %s has no image", s.Name)
		}
	}
	return nil
}

// Bindings returns every volume binding across all subservices, in order.
func (m *ServiceModel) Bindings() []VolumeBinding {
	var out []VolumeBinding
	for _, s := range m.Subservices {
		out = append(out, s.Volumes...)
	}
	return out
}

// VolumeNames returns the distinct runtime volume names in declaration order.
func (m *ServiceModel) VolumeNames() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range m.Bindings() {
		if seen[b.RuntimeVolumeName] {
			continue
		}
		seen[b.RuntimeVolumeName] = true
		out = append(out, b.RuntimeVolumeName)
	}
	return out
}

// MountPaths returns the distinct mount paths in declaration order.
func (m *ServiceModel) MountPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range m.Bindings() {
		if seen[b.MountPath] {
			continue
		}
		seen[b.MountPath] = true
		out = append(out, b.MountPath)
	}
	return out
}

// Images returns every image the service needs, main image first, without
// duplicates.
func (m *ServiceModel) Images() []string {
	seen := map[string]bool{m.MainImage: true}
	out := []string{m.MainImage}
	add := func(img string) {
		if img == "" || seen[img] {
			return
		}
		seen[img] = true
		out = append(out, img)
	}
	for _, s := range m.Subservices {
		add(s.Image)
	}
	for _, img := range m.ExtraImages {
		add(img)
	}
	return out
}
