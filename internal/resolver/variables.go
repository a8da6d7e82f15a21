package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/model"
	"github.com/ThomasCrouzet/svcrunner/internal/paths"
	"github.com/ThomasCrouzet/svcrunner/internal/shvars"
	"github.com/ThomasCrouzet/svcrunner/internal/svcerr"
)

// hostIP is swapped in tests.
var hostIP = firstIPv4

// Variables builds the snapshot hook scripts source from variables.sh.
func Variables(svc paths.Service, m *model.ServiceModel, installed time.Time) *shvars.File {
	var mounts, vols, opts []string
	for _, b := range m.Bindings() {
		mounts = append(mounts, b.MountPath)
		vols = append(vols, b.RuntimeVolumeName)
		opts = append(opts, "-v", b.RuntimeVolumeName+":"+b.MountPath)
	}

	images := m.Images()
	f := shvars.New()
	f.SetList("VOLUMES", mounts)
	f.SetList("EXTRACONTAINERS", images[1:])
	f.SetString("SERVICENAME", m.ServiceName)
	f.SetString("IMAGENAME", m.MainImage)
	f.SetString("SERVICETEMPDIR", svc.TempDir())
	f.SetString("HOSTVOLUMEDIR", svc.HostVolume())
	f.SetList("DOCKERVOLS", vols)
	f.SetList("DOCKEROPTS", opts)
	f.SetString("INSTALLTIME", installed.UTC().Format(time.RFC3339))
	f.SetString("HOSTIP", hostIP())
	return f
}

// WriteVariables regenerates the runner directory's variables.sh.
func WriteVariables(svc paths.Service, m *model.ServiceModel, installed time.Time) error {
	if err := Variables(svc, m, installed).Write(svc.VariablesFile()); err != nil {
		return svcerr.New(svcerr.Filesystem, svc.Name(), err).WithPath(svc.VariablesFile())
	}
	return nil
}

// ReadInstallTime returns INSTALLTIME from variables.sh.
func ReadInstallTime(svc paths.Service) (time.Time, error) {
	f, err := shvars.Read(svc.VariablesFile())
	if err != nil {
		return time.Time{}, err
	}
	v, ok := f.String("INSTALLTIME")
	if !ok {
		return time.Time{}, fmt.Errorf("%s has no INSTALLTIME", svc.VariablesFile())
	}
	return time.Parse(time.RFC3339, v)
}

// WriteImageName records the main image a service was installed from.
func WriteImageName(svc paths.Service, image string) error {
	f := shvars.New()
	f.SetString("IMAGENAME", image)
	if err := f.Write(svc.ImageNameFile()); err != nil {
		return svcerr.New(svcerr.Filesystem, svc.Name(), err).WithPath(svc.ImageNameFile())
	}
	return nil
}

// ReadImageName returns the recorded main image. A missing or empty record
// is a Filesystem error.
func ReadImageName(svc paths.Service) (string, error) {
	f, err := shvars.Read(svc.ImageNameFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("no image record: %w", err)
		}
		return "", svcerr.New(svcerr.Filesystem, svc.Name(), err).WithPath(svc.ImageNameFile())
	}
	image, _ := f.String("IMAGENAME")
	if image == "" {
		return "", svcerr.Newf(svcerr.Filesystem, svc.Name(), "IMAGENAME is empty").WithPath(svc.ImageNameFile())
	}
	return image, nil
}

// firstIPv4 returns the first non-loopback IPv4 address of the host, or "".
func firstIPv4() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
