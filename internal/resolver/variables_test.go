package resolver

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/shvars"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) paths.Service {
	t.Helper()
	layout, err := paths.NewLayout(t.TempDir())
	require.NoError(t, err)
	svc, err := layout.Service("blog")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(svc.RunnerDir(), 0o755))
	return svc
}

func TestWriteVariables(t *testing.T) {
	prev := hostIP
	hostIP = func() string { return "10.0.0.5" }
	t.Cleanup(func() { hostIP = prev })

	svc := testService(t)
	m := &model.ServiceModel{
		ServiceName: "blog",
		MainImage:   "example/blog:2",
		Subservices: []model.SubserviceInfo{{
			Name:  "blog",
			Image: "example/blog:2",
			Volumes: []model.VolumeBinding{
				{MountPath: "/data", RuntimeVolumeName: "svcrunner-blogdata"},
			},
		}},
		ExtraImages: []string{"redis:7"},
	}
	installed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, WriteVariables(svc, m, installed))

	f, err := shvars.Read(svc.VariablesFile())
	require.NoError(t, err)
	assert.Equal(t, []string{"/data"}, f.List("VOLUMES"))
	assert.Equal(t, []string{"redis:7"}, f.List("EXTRACONTAINERS"))
	assert.Equal(t, []string{"svcrunner-blogdata"}, f.List("DOCKERVOLS"))
	assert.Equal(t, []string{"-v", "svcrunner-blogdata:/data"}, f.List("DOCKEROPTS"))
	assert.Equal(t, "blog", f.StringOr("SERVICENAME", ""))
	assert.Equal(t, "example/blog:2", f.StringOr("IMAGENAME", ""))
	assert.Equal(t, svc.TempDir(), f.StringOr("SERVICETEMPDIR", ""))
	assert.Equal(t, "2026-01-02T03:04:05Z", f.StringOr("INSTALLTIME", ""))
	assert.Equal(t, "10.0.0.5", f.StringOr("HOSTIP", ""))

	got, err := ReadInstallTime(svc)
	require.NoError(t, err)
	assert.True(t, installed.Equal(got))
}

func TestImageNameRecord(t *testing.T) {
	svc := testService(t)

	_, err := ReadImageName(svc)
	assert.True(t, errors.Is(err, svcerr.ErrFilesystem))

	require.NoError(t, WriteImageName(svc, "example/blog:2"))
	image, err := ReadImageName(svc)
	require.NoError(t, err)
	assert.Equal(t, "example/blog:2", image)
}
