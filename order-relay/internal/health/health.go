// Package health aggregates the liveness and readiness of the relay's
// components.
package health

import (
	"context"
	"time"
)

type Status string

const (
	OK         Status = "OK"
	Error      Status = "ERROR"
	NotStarted Status = "NOT_STARTED"
)

// HealthStatus is the state of one component.
type HealthStatus struct {
	Name               string `json:"name"`
	Status             Status `json:"status"`
	Description        string `json:"description,omitempty"`
	IncludeInReadiness bool   `json:"includeInReadiness"`
}

// Check is anything that can report its health.
type Check interface {
	Health(ctx context.Context) HealthStatus
}

// CheckFunc adapts a function to Check.
type CheckFunc func(ctx context.Context) HealthStatus

func (f CheckFunc) Health(ctx context.Context) HealthStatus { return f(ctx) }

const pingTimeout = 2 * time.Second

// PingCheck reports OK when ping succeeds. It counts for readiness.
func PingCheck(name string, ping func(ctx context.Context) error) Check {
	return CheckFunc(func(ctx context.Context) HealthStatus {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := ping(ctx); err != nil {
			return HealthStatus{Name: name, Status: Error, Description: err.Error(), IncludeInReadiness: true}
		}
		return HealthStatus{Name: name, Status: OK, IncludeInReadiness: true}
	})
}

// Service evaluates the checks returned by its provider on every call, so
// components replaced at runtime are picked up.
type Service struct {
	checks func() []Check
}

func NewService(checks func() []Check) *Service {
	return &Service{checks: checks}
}

func (s *Service) Statuses(ctx context.Context) []HealthStatus {
	checks := s.checks()
	out := make([]HealthStatus, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.Health(ctx))
	}
	return out
}

// IsAlive is false as soon as any component is in error.
func (s *Service) IsAlive(ctx context.Context) bool {
	for _, st := range s.Statuses(ctx) {
		if st.Status == Error {
			return false
		}
	}
	return true
}

// IsReady requires every readiness check to be OK.
func (s *Service) IsReady(ctx context.Context) bool {
	for _, st := range s.Statuses(ctx) {
		if st.IncludeInReadiness && st.Status != OK {
			return false
		}
	}
	return true
}
