package domain

import "time"

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is the probe result for one dependency.
type HealthReport struct {
	Dependency string
	Status     HealthStatus
	Timestamp  time.Time
	Error      string
}

func (r HealthReport) Healthy() bool { return r.Status == HealthHealthy }
