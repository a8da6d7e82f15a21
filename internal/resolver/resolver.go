// Package resolver turns the definition files shipped in a service image into
// a model.ServiceModel. Two formats are understood, tried in order: a
// compose-style manifest and the legacy servicecfg.sh settings file.
package resolver

import (
	"errors"
	"fmt"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
)

// SupportedSchemaVersion is the only manifest version this engine accepts.
const SupportedSchemaVersion = 2

var (
	ErrNoDefinition       = errors.New("no service definition found")
	ErrUnsupportedVersion = errors.New("unsupported manifest version")
	ErrMalformedManifest  = errors.New("malformed manifest")
	ErrMissingImage       = errors.New("service has no image")
)

// Resolve runs the first strategy whose definition file is present. The
// boolean is true only when a model was produced. Every failure is a
// svcerr Resolution error.
func Resolve(in Input) (*model.ServiceModel, bool, error) {
	for _, s := range All() {
		if !s.Detect(in.RunnerDir) {
			continue
		}
		m, err := s.Resolve(in)
		if err != nil {
			return nil, false, wrap(in, err)
		}
		if err := m.Validate(); err != nil {
			return nil, false, wrap(in, fmt.Errorf("%s: %w: %v", s.Metadata().DisplayName, ErrMalformedManifest, err))
		}
		return m, true, nil
	}
	return nil, false, wrap(in, ErrNoDefinition)
}

// Detected returns the metadata of the strategy that would handle runnerDir.
func Detected(runnerDir string) (Metadata, bool) {
	for _, s := range All() {
		if s.Detect(runnerDir) {
			return s.Metadata(), true
		}
	}
	return Metadata{}, false
}

func wrap(in Input, err error) error {
	var se *svcerr.Error
	if errors.As(err, &se) {
		return err
	}
	return svcerr.New(svcerr.Resolution, in.ServiceName, err).WithPath(in.RunnerDir)
}
