package gallerykit

import (
	"context"
	"time"
)

// Store is the persistent collaborator behind the resolver and the workflow.
// Implementations must make ResolveArtistRequest a compare-and-set on the
// pending status and must run WithinTx atomically.
type Store interface {
	// RoleAssignments returns every role assignment of a subject.
	RoleAssignments(ctx context.Context, subjectID string) ([]RoleAssignment, error)

	// GrantRole inserts the assignment unless the subject already holds that role.
	// It reports whether a row was created.
	GrantRole(ctx context.Context, assignment *RoleAssignment) (bool, error)

	// CreateArtistRequest inserts a pending request. A second pending request
	// for the same subject fails with ErrConsistency.
	CreateArtistRequest(ctx context.Context, req *ArtistRequest) error

	// ArtistRequest returns a request by ID or ErrNotFound.
	ArtistRequest(ctx context.Context, id string) (*ArtistRequest, error)

	// LatestArtistRequest returns the most recent request of a subject, or nil.
	LatestArtistRequest(ctx context.Context, subjectID string) (*ArtistRequest, error)

	// ResolveArtistRequest moves a pending request to status, stamping the reviewer.
	// It reports false when the request was not pending anymore.
	ResolveArtistRequest(ctx context.Context, id string, status RequestStatus, reviewedBy string, reviewedAt time.Time) (bool, error)

	// ArtistRequests lists requests matching the filter, newest first.
	ArtistRequests(ctx context.Context, filter RequestFilter) ([]ArtistRequest, error)

	// Profiles returns the profiles of the given subjects. Missing profiles are skipped.
	Profiles(ctx context.Context, subjectIDs []string) ([]Profile, error)

	// UngrantedApprovals returns approved requests whose subject holds neither
	// the artist nor the admin role.
	UngrantedApprovals(ctx context.Context) ([]ArtistRequest, error)

	// CreateArtwork inserts an artwork.
	CreateArtwork(ctx context.Context, artwork *Artwork) error

	// LogAudit appends an audit log entry.
	LogAudit(ctx context.Context, entry *RoleAuditLog) error

	// AuditLog lists audit entries matching the filter, newest first.
	AuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error)

	// WithinTx runs fn against a transactional view of the store. The changes
	// made through tx are committed only if fn returns nil.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	IsHealthy(ctx context.Context) bool
	Ping(ctx context.Context) error
}
