package ports

import "context"

// HealthChecker is one dependency reported by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
	// Critical dependencies hold ledger state; losing one makes the
	// service unhealthy. Losing a non-critical one only degrades it.
	Critical() bool
}
