package gallerykit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// BunStore implements Store on Postgres through bun.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	store := gallerykit.NewBunStore(db.Bun())
type BunStore struct {
	db bun.IDB
}

// NewBunStore creates a store over a bun database or transaction.
func NewBunStore(db bun.IDB) *BunStore {
	return &BunStore{db: db}
}

// ============================================================================
// ROLE ASSIGNMENTS
// ============================================================================

func (s *BunStore) RoleAssignments(ctx context.Context, subjectID string) ([]RoleAssignment, error) {
	var assignments []RoleAssignment
	err := s.db.NewSelect().
		Model(&assignments).
		Where("subject_id = ?", subjectID).
		Order("created_at ASC").
		Scan(ctx)
	if err := dbkit.WithErr1(err, "GetRoleAssignments").Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *BunStore) GrantRole(ctx context.Context, assignment *RoleAssignment) (bool, error) {
	result, err := s.db.NewInsert().
		Model(assignment).
		On("CONFLICT (subject_id, role) DO NOTHING").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateRoleAssignment").Err(); err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ============================================================================
// ARTIST REQUESTS
// ============================================================================

func (s *BunStore) CreateArtistRequest(ctx context.Context, req *ArtistRequest) error {
	result, err := s.db.NewInsert().Model(req).Exec(ctx)
	if err != nil && dbkit.IsDuplicate(err) {
		return NewError(ErrConsistency, "a pending request already exists").
			WithSubject(req.SubjectID).
			WithCause(err)
	}
	return dbkit.WithErr(result, err, "CreateArtistRequest").Err()
}

func (s *BunStore) ArtistRequest(ctx context.Context, id string) (*ArtistRequest, error) {
	req := new(ArtistRequest)
	err := s.db.NewSelect().
		Model(req).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewError(ErrNotFound, "artist request not found").WithRequest(id)
		}
		return nil, dbkit.WithErr1(err, "GetArtistRequest").Err()
	}
	return req, nil
}

func (s *BunStore) LatestArtistRequest(ctx context.Context, subjectID string) (*ArtistRequest, error) {
	req := new(ArtistRequest)
	err := s.db.NewSelect().
		Model(req).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, dbkit.WithErr1(err, "GetLatestArtistRequest").Err()
	}
	return req, nil
}

func (s *BunStore) ResolveArtistRequest(ctx context.Context, id string, status RequestStatus, reviewedBy string, reviewedAt time.Time) (bool, error) {
	result, err := s.db.NewUpdate().
		Model((*ArtistRequest)(nil)).
		Set("status = ?", status).
		Set("reviewed_by = ?", reviewedBy).
		Set("reviewed_at = ?", reviewedAt).
		Where("id = ?", id).
		Where("status = ?", RequestStatusPending).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "ResolveArtistRequest").Err(); err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *BunStore) ArtistRequests(ctx context.Context, filter RequestFilter) ([]ArtistRequest, error) {
	var reqs []ArtistRequest
	q := s.db.NewSelect().Model(&reqs)
	switch filter.View {
	case RequestViewPending:
		q = q.Where("status = ?", RequestStatusPending)
	case RequestViewProcessed:
		q = q.Where("status <> ?", RequestStatusPending)
	}
	if filter.SubjectID != "" {
		q = q.Where("subject_id = ?", filter.SubjectID)
	}
	q = q.Order("created_at DESC").Limit(effectiveLimit(filter.Limit))
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if err := dbkit.WithErr1(q.Scan(ctx), "ListArtistRequests").Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *BunStore) Profiles(ctx context.Context, subjectIDs []string) ([]Profile, error) {
	if len(subjectIDs) == 0 {
		return nil, nil
	}
	var profiles []Profile
	err := s.db.NewSelect().
		Model(&profiles).
		Where("subject_id IN (?)", bun.In(subjectIDs)).
		Scan(ctx)
	if err := dbkit.WithErr1(err, "GetProfiles").Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *BunStore) UngrantedApprovals(ctx context.Context) ([]ArtistRequest, error) {
	var reqs []ArtistRequest
	err := s.db.NewSelect().
		Model(&reqs).
		Where("status = ?", RequestStatusApproved).
		Where("NOT EXISTS (SELECT 1 FROM role_assignments AS g WHERE g.subject_id = ar.subject_id AND g.role IN (?))",
			bun.In([]string{string(RoleArtist), string(RoleAdmin), "superuser"})).
		Order("reviewed_at ASC").
		Scan(ctx)
	if err := dbkit.WithErr1(err, "GetUngrantedApprovals").Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// ============================================================================
// ARTWORKS AND AUDIT LOG
// ============================================================================

func (s *BunStore) CreateArtwork(ctx context.Context, artwork *Artwork) error {
	result, err := s.db.NewInsert().Model(artwork).Exec(ctx)
	return dbkit.WithErr(result, err, "CreateArtwork").Err()
}

func (s *BunStore) LogAudit(ctx context.Context, entry *RoleAuditLog) error {
	_, err := s.db.NewInsert().Model(entry).Exec(ctx)
	return dbkit.WithErr1(err, "LogAudit").Err()
}

func (s *BunStore) AuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error) {
	var logs []RoleAuditLog
	q := s.db.NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.TargetSubjectID != "" {
		q = q.Where("target_subject_id = ?", filter.TargetSubjectID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	q = q.Limit(effectiveLimit(filter.Limit))
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	if err := dbkit.WithErr1(q.Scan(ctx), "GetAuditLog").Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// WithinTx runs fn in a database transaction. Nested calls use savepoints.
func (s *BunStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &BunStore{db: tx})
	})
}
