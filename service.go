package gallerykit

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service runs the gallery's role resolution and artist request workflow
// against a Store.
//
// Error Handling:
// Every operation returns a *Error wrapping one of the sentinel errors, so
// callers can branch with the Is helpers:
//
//	err := service.Resolve(ctx, session, requestID, gallerykit.DecisionApprove)
//	switch {
//	case gallerykit.IsUnauthorized(err):
//	    // caller is not an admin
//	case gallerykit.IsConsistency(err):
//	    // request was already resolved
//	case gallerykit.IsDependency(err):
//	    // store unavailable, safe to retry
//	}
type Service struct {
	store    Store
	registry *Registry
	logger   log.FieldLogger
	metrics  *Metrics
	retry    RetryPolicy
	now      func() time.Time
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithRegistry replaces the default feature registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) {
		s.registry = r
	}
}

// WithLogger sets the logger. The standard logrus logger is used otherwise.
func WithLogger(l log.FieldLogger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics records workflow metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetryPolicy sets how transient transaction failures are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) {
		s.retry = p
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides the generator for record IDs.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a new gallery service.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := gallerykit.NewService(gallerykit.NewBunStore(db.Bun()),
//	    gallerykit.WithLogger(log.WithField("component", "gallery")),
//	)
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		registry: DefaultRegistry(),
		logger:   log.StandardLogger(),
		retry:    DefaultRetryPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the feature registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// AuditLog retrieves role grant audit entries with optional filters.
// Only admins may read the audit log.
func (s *Service) AuditLog(ctx context.Context, session *Session, filter AuditLogFilter) ([]RoleAuditLog, error) {
	if session == nil {
		return nil, NewError(ErrUnauthorized, "no session")
	}
	if err := session.require(ctx, RoleAdmin, false); err != nil {
		return nil, err
	}
	logs, err := s.store.AuditLog(ctx, filter)
	if err != nil {
		return nil, dependencyError(err, "read audit log")
	}
	return logs, nil
}
