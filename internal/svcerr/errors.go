// Package svcerr defines the error kinds every svcrunner operation reports.
//
// Each failure reaching a caller is an *Error carrying its Kind plus enough
// context (service, path, captured command output) to diagnose it without
// re-running. Kinds are matched with errors.Is against the sentinel values:
//
//	if errors.Is(err, svcerr.ErrResolution) { ... }
package svcerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// Resolution: manifest missing, malformed or of an unsupported version.
	Resolution Kind = iota + 1
	// Validation: an image or input fails a safety check, e.g. runs as root.
	Validation
	// Runtime: a container runtime command failed.
	Runtime
	// Filesystem: an expected path is missing, or a create/delete failed.
	Filesystem
	// StateMismatch: restored volume set disagrees with the backup manifest.
	StateMismatch
	// CorruptArchive: a backup is missing expected internal entries.
	CorruptArchive
)

func (k Kind) String() string {
	switch k {
	case Resolution:
		return "resolution"
	case Validation:
		return "validation"
	case Runtime:
		return "runtime"
	case Filesystem:
		return "filesystem"
	case StateMismatch:
		return "state mismatch"
	case CorruptArchive:
		return "corrupt archive"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is.
var (
	ErrResolution     = &Error{Kind: Resolution}
	ErrValidation     = &Error{Kind: Validation}
	ErrRuntime        = &Error{Kind: Runtime}
	ErrFilesystem     = &Error{Kind: Filesystem}
	ErrStateMismatch  = &Error{Kind: StateMismatch}
	ErrCorruptArchive = &Error{Kind: CorruptArchive}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Service string
	Path    string
	// Output is captured output of the external command that failed, if any.
	Output string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Service != "" {
		b.WriteString(" [")
		b.WriteString(e.Service)
		b.WriteString("]")
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the package sentinels work with
// errors.Is regardless of the context attached to err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Service == "" && t.Err == nil
}

// New builds a classified error for service.
func New(kind Kind, service string, err error) *Error {
	return &Error{Kind: kind, Service: service, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, service, format string, args ...any) *Error {
	return &Error{Kind: kind, Service: service, Err: fmt.Errorf(format, args...)}
}

// WithPath returns e with Path set.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithOutput returns e with captured command output attached.
func (e *Error) WithOutput(output string) *Error {
	e.Output = output
	return e
}

// KindOf reports the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// WithService fills in the service on the first *Error in err's chain when it
// has none. Other errors are returned unchanged.
func WithService(err error, service string) error {
	var e *Error
	if errors.As(err, &e) && e.Service == "" {
		e.Service = service
	}
	return err
}
