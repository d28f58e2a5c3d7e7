package daemon

import (
	"context"
	"sort"
	"time"
)

type HealthStatus string

const (
	StatusStarting HealthStatus = "starting"
	StatusRunning  HealthStatus = "running"
	StatusStopping HealthStatus = "stopping"
	StatusStopped  HealthStatus = "stopped"
)

type ComponentHealth struct {
	Name    string
	Healthy bool
	Error   error
}

// Component is a unit of the service lifecycle. Init runs in dependency
// order, Start follows the same order and Stop runs in reverse.
type Component interface {
	Name() string
	Dependencies() []string
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) (*ComponentHealth, error)
}

// ComponentReport is the serialisable form of ComponentHealth.
type ComponentReport struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report summarises the daemon for health endpoints.
type Report struct {
	Instance   string            `json:"instance"`
	Status     HealthStatus      `json:"status"`
	Healthy    bool              `json:"healthy"`
	UptimeSecs int64             `json:"uptime_seconds"`
	Components []ComponentReport `json:"components"`
}

func newReport(instance string, status HealthStatus, uptime time.Duration, healths map[string]*ComponentHealth) Report {
	r := Report{
		Instance:   instance,
		Status:     status,
		Healthy:    status == StatusRunning,
		UptimeSecs: int64(uptime / time.Second),
		Components: make([]ComponentReport, 0, len(healths)),
	}
	for name, h := range healths {
		cr := ComponentReport{Name: name, Healthy: h.Healthy}
		if h.Error != nil {
			cr.Error = h.Error.Error()
		}
		if !h.Healthy {
			r.Healthy = false
		}
		r.Components = append(r.Components, cr)
	}
	sort.Slice(r.Components, func(i, j int) bool { return r.Components[i].Name < r.Components[j].Name })
	return r
}
