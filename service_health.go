package gallerykit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// HealthService reports on the database behind a BunStore.
type HealthService struct {
	db *dbkit.DBKit
}

// NewHealthService creates a health service for db.
func NewHealthService(db *dbkit.DBKit) *HealthService {
	return &HealthService{db: db}
}

// Health performs a full health check including latency and pool statistics.
func (hs *HealthService) Health(ctx context.Context) dbkit.HealthStatus {
	return hs.db.Health(ctx)
}

// IsHealthy performs a simple health check of the database connection.
func (hs *HealthService) IsHealthy(ctx context.Context) bool {
	return hs.db.IsHealthy(ctx)
}

// Ping checks that the database answers.
func (hs *HealthService) Ping(ctx context.Context) error {
	return hs.db.PingContext(ctx)
}

// GetPoolStats returns connection pool statistics for monitoring.
func (hs *HealthService) GetPoolStats() dbkit.PoolStats {
	return dbkit.PoolStatsFromSQL(hs.db.Stats())
}

// StaticHealth is a HealthMonitor that is always healthy. It stands in for
// HealthService when the memory store is used.
type StaticHealth struct{}

func (StaticHealth) IsHealthy(context.Context) bool { return true }

func (StaticHealth) Ping(context.Context) error { return nil }
