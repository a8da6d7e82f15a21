package svcerr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIsMatchesKind(t *testing.T) {
	err := New(Resolution, "blog", errors.New("unsupported version 1"))
	wrapped := fmt.Errorf("installing blog: %w", err)

	assert.True(t, errors.Is(wrapped, ErrResolution))
	assert.False(t, errors.Is(wrapped, ErrValidation))
	assert.Equal(t, Resolution, KindOf(wrapped))
}

func TestErrorsIsReachesCause(t *testing.T) {
	err := New(Filesystem, "blog", fs.ErrNotExist).WithPath("/opt/svcrunner/services/blog")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.True(t, errors.Is(err, ErrFilesystem))
}

func TestErrorMessage(t *testing.T) {
	err := Newf(Runtime, "blog", "docker volume create %s failed", "svcrunner-blogdata").
		WithOutput("Error response from daemon: no space left\n")

	msg := err.Error()
	assert.Contains(t, msg, "runtime error [blog]")
	assert.Contains(t, msg, "svcrunner-blogdata")
	assert.Contains(t, msg, "no space left")
}

func TestErrorsAs(t *testing.T) {
	var target *Error
	err := fmt.Errorf("wrap: %w", New(CorruptArchive, "wiki", errors.New("backup.yml missing")))
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "wiki", target.Service)
	assert.Equal(t, "corrupt archive", target.Kind.String())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}

func TestWithService(t *testing.T) {
	err := fmt.Errorf("pulling: %w", New(Runtime, "", errors.New("exit 1")))
	require.Equal(t, err, WithService(err, "blog"))

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "blog", e.Service)

	WithService(err, "other")
	assert.Equal(t, "blog", e.Service, "an existing service is kept")

	plain := errors.New("plain")
	assert.Equal(t, plain, WithService(plain, "blog"))
}
