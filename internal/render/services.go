package render

import (
	"strconv"
	"strings"
	"time"

	"github.com/ThomasCrouzet/svcrunner/internal/lifecycle"
	"github.com/dustin/go-humanize"
)

// ServiceView is the printable form of a lifecycle.Status.
type ServiceView struct {
	Name           string     `json:"name" yaml:"name"`
	State          string     `json:"state" yaml:"state"`
	Image          string     `json:"image,omitempty" yaml:"image,omitempty"`
	Source         string     `json:"source,omitempty" yaml:"source,omitempty"`
	Subservices    []string   `json:"subservices,omitempty" yaml:"subservices,omitempty"`
	Volumes        []string   `json:"volumes,omitempty" yaml:"volumes,omitempty"`
	InstalledAt    *time.Time `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
	HostVolume     string     `json:"host_volume,omitempty" yaml:"host_volume,omitempty"`
	HostVolumeSize int64      `json:"host_volume_bytes,omitempty" yaml:"host_volume_bytes,omitempty"`
	Error          string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewServiceView flattens st.
func NewServiceView(st lifecycle.Status) ServiceView {
	v := ServiceView{Name: st.Name, State: st.State.String(), Image: st.Image}
	if st.Model != nil {
		v.Source = string(st.Model.Source)
		for _, s := range st.Model.Subservices {
			v.Subservices = append(v.Subservices, s.Name)
		}
		v.Volumes = st.Model.VolumeNames()
	}
	if !st.InstalledAt.IsZero() {
		at := st.InstalledAt
		v.InstalledAt = &at
	}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	return v
}

// ServiceList is the list command's table.
type ServiceList []ServiceView

// NewServiceList flattens every status.
func NewServiceList(sts []lifecycle.Status) ServiceList {
	out := make(ServiceList, 0, len(sts))
	for _, st := range sts {
		out = append(out, NewServiceView(st))
	}
	return out
}

func (l ServiceList) Headers() []string {
	return []string{"Name", "State", "Image", "Volumes", "Installed"}
}

func (l ServiceList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		rows = append(rows, []string{v.Name, v.State, dash(v.Image), strconv.Itoa(len(v.Volumes)), since(v.InstalledAt)})
	}
	return rows
}

// Headers is empty: a single service prints as key/value pairs.
func (v ServiceView) Headers() []string {
	return nil
}

func (v ServiceView) Rows() [][]string {
	rows := [][]string{
		{"Name", v.Name},
		{"State", v.State},
		{"Image", dash(v.Image)},
	}
	if v.Source != "" {
		rows = append(rows, []string{"Definition", v.Source})
	}
	if len(v.Subservices) > 0 {
		rows = append(rows, []string{"Subservices", strings.Join(v.Subservices, ", ")})
	}
	if len(v.Volumes) > 0 {
		rows = append(rows, []string{"Volumes", strings.Join(v.Volumes, ", ")})
	}
	if v.InstalledAt != nil {
		rows = append(rows, []string{"Installed", v.InstalledAt.Format(time.RFC3339) + " (" + since(v.InstalledAt) + ")"})
	}
	if v.HostVolume != "" {
		rows = append(rows, []string{"Host volume", v.HostVolume + " (" + humanize.Bytes(uint64(v.HostVolumeSize)) + ")"})
	}
	if v.Error != "" {
		rows = append(rows, []string{"Error", v.Error})
	}
	return rows
}

func since(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
