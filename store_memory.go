package gallerykit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Transactions work on a snapshot that
// replaces the live state on commit. It backs tests and the "memory" driver.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	fail  map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		fail:  make(map[string]error),
	}
}

// FailOn makes every later call of the named Store method return err.
// Passing a nil err clears the fault.
func (m *MemoryStore) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, method)
		return
	}
	m.fail[method] = err
}

// PutProfile stores a profile. Profiles are owned by another system, so the
// Store interface has no write path for them.
func (m *MemoryStore) PutProfile(p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.profiles[p.SubjectID] = p
}

func (m *MemoryStore) view() *memoryTx {
	return &memoryTx{state: m.state, fail: m.fail}
}

func (m *MemoryStore) RoleAssignments(ctx context.Context, subjectID string) ([]RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().RoleAssignments(ctx, subjectID)
}

func (m *MemoryStore) GrantRole(ctx context.Context, assignment *RoleAssignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GrantRole(ctx, assignment)
}

func (m *MemoryStore) CreateArtistRequest(ctx context.Context, req *ArtistRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateArtistRequest(ctx, req)
}

func (m *MemoryStore) ArtistRequest(ctx context.Context, id string) (*ArtistRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ArtistRequest(ctx, id)
}

func (m *MemoryStore) LatestArtistRequest(ctx context.Context, subjectID string) (*ArtistRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().LatestArtistRequest(ctx, subjectID)
}

func (m *MemoryStore) ResolveArtistRequest(ctx context.Context, id string, status RequestStatus, reviewedBy string, reviewedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ResolveArtistRequest(ctx, id, status, reviewedBy, reviewedAt)
}

func (m *MemoryStore) ArtistRequests(ctx context.Context, filter RequestFilter) ([]ArtistRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ArtistRequests(ctx, filter)
}

func (m *MemoryStore) Profiles(ctx context.Context, subjectIDs []string) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().Profiles(ctx, subjectIDs)
}

func (m *MemoryStore) UngrantedApprovals(ctx context.Context) ([]ArtistRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UngrantedApprovals(ctx)
}

func (m *MemoryStore) CreateArtwork(ctx context.Context, artwork *Artwork) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CreateArtwork(ctx, artwork)
}

func (m *MemoryStore) LogAudit(ctx context.Context, entry *RoleAuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().LogAudit(ctx, entry)
}

func (m *MemoryStore) AuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().AuditLog(ctx, filter)
}

// WithinTx holds the store lock for the whole transaction, so transactions
// are serialized.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail["WithinTx"]; err != nil {
		return err
	}
	tx := &memoryTx{state: m.state.clone(), fail: m.fail}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

// memoryState is the data behind a MemoryStore. It is not synchronized.
type memoryState struct {
	assignments []RoleAssignment
	requests    []ArtistRequest
	profiles    map[string]Profile
	artworks    []Artwork
	audit       []RoleAuditLog
}

func newMemoryState() *memoryState {
	return &memoryState{profiles: make(map[string]Profile)}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		assignments: append([]RoleAssignment(nil), st.assignments...),
		requests:    make([]ArtistRequest, len(st.requests)),
		profiles:    make(map[string]Profile, len(st.profiles)),
		artworks:    append([]Artwork(nil), st.artworks...),
		audit:       append([]RoleAuditLog(nil), st.audit...),
	}
	for i, r := range st.requests {
		c.requests[i] = copyRequest(r)
	}
	for k, v := range st.profiles {
		c.profiles[k] = v
	}
	return c
}

func copyRequest(r ArtistRequest) ArtistRequest {
	if r.ReviewedBy != nil {
		by := *r.ReviewedBy
		r.ReviewedBy = &by
	}
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		r.ReviewedAt = &at
	}
	return r
}

// memoryTx implements Store directly on a memoryState. Callers hold the lock.
type memoryTx struct {
	state *memoryState
	fail  map[string]error
}

func (t *memoryTx) check(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.fail[method]
}

func (t *memoryTx) RoleAssignments(ctx context.Context, subjectID string) ([]RoleAssignment, error) {
	if err := t.check(ctx, "RoleAssignments"); err != nil {
		return nil, err
	}
	var out []RoleAssignment
	for _, a := range t.state.assignments {
		if a.SubjectID == subjectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memoryTx) GrantRole(ctx context.Context, assignment *RoleAssignment) (bool, error) {
	if err := t.check(ctx, "GrantRole"); err != nil {
		return false, err
	}
	for _, a := range t.state.assignments {
		if a.SubjectID == assignment.SubjectID && a.Role == assignment.Role {
			return false, nil
		}
	}
	t.state.assignments = append(t.state.assignments, *assignment)
	return true, nil
}

func (t *memoryTx) CreateArtistRequest(ctx context.Context, req *ArtistRequest) error {
	if err := t.check(ctx, "CreateArtistRequest"); err != nil {
		return err
	}
	if req.Status == RequestStatusPending {
		for _, r := range t.state.requests {
			if r.SubjectID == req.SubjectID && r.Status == RequestStatusPending {
				return NewError(ErrConsistency, "a pending request already exists").WithSubject(req.SubjectID)
			}
		}
	}
	t.state.requests = append(t.state.requests, copyRequest(*req))
	return nil
}

func (t *memoryTx) ArtistRequest(ctx context.Context, id string) (*ArtistRequest, error) {
	if err := t.check(ctx, "ArtistRequest"); err != nil {
		return nil, err
	}
	for _, r := range t.state.requests {
		if r.ID == id {
			c := copyRequest(r)
			return &c, nil
		}
	}
	return nil, NewError(ErrNotFound, "artist request not found").WithRequest(id)
}

func (t *memoryTx) LatestArtistRequest(ctx context.Context, subjectID string) (*ArtistRequest, error) {
	if err := t.check(ctx, "LatestArtistRequest"); err != nil {
		return nil, err
	}
	var latest *ArtistRequest
	for _, r := range t.state.requests {
		if r.SubjectID != subjectID {
			continue
		}
		// Ties go to the later insert.
		if latest == nil || !r.CreatedAt.Before(latest.CreatedAt) {
			c := copyRequest(r)
			latest = &c
		}
	}
	return latest, nil
}

func (t *memoryTx) ResolveArtistRequest(ctx context.Context, id string, status RequestStatus, reviewedBy string, reviewedAt time.Time) (bool, error) {
	if err := t.check(ctx, "ResolveArtistRequest"); err != nil {
		return false, err
	}
	for i := range t.state.requests {
		r := &t.state.requests[i]
		if r.ID != id || r.Status != RequestStatusPending {
			continue
		}
		r.Status = status
		r.ReviewedBy = &reviewedBy
		r.ReviewedAt = &reviewedAt
		return true, nil
	}
	return false, nil
}

func (t *memoryTx) ArtistRequests(ctx context.Context, filter RequestFilter) ([]ArtistRequest, error) {
	if err := t.check(ctx, "ArtistRequests"); err != nil {
		return nil, err
	}
	var out []ArtistRequest
	for _, r := range t.state.requests {
		if filter.Matches(&r) {
			out = append(out, copyRequest(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (t *memoryTx) Profiles(ctx context.Context, subjectIDs []string) ([]Profile, error) {
	if err := t.check(ctx, "Profiles"); err != nil {
		return nil, err
	}
	var out []Profile
	for _, id := range subjectIDs {
		if p, ok := t.state.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memoryTx) UngrantedApprovals(ctx context.Context) ([]ArtistRequest, error) {
	if err := t.check(ctx, "UngrantedApprovals"); err != nil {
		return nil, err
	}
	var out []ArtistRequest
	for _, r := range t.state.requests {
		if r.Status != RequestStatusApproved {
			continue
		}
		var held []RoleAssignment
		for _, a := range t.state.assignments {
			if a.SubjectID == r.SubjectID {
				held = append(held, a)
			}
		}
		if !HasCapability(ResolveEffectiveRole(held), RoleArtist) {
			out = append(out, copyRequest(r))
		}
	}
	return out, nil
}

func (t *memoryTx) CreateArtwork(ctx context.Context, artwork *Artwork) error {
	if err := t.check(ctx, "CreateArtwork"); err != nil {
		return err
	}
	t.state.artworks = append(t.state.artworks, *artwork)
	return nil
}

func (t *memoryTx) LogAudit(ctx context.Context, entry *RoleAuditLog) error {
	if err := t.check(ctx, "LogAudit"); err != nil {
		return err
	}
	t.state.audit = append(t.state.audit, *entry)
	return nil
}

func (t *memoryTx) AuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleAuditLog, error) {
	if err := t.check(ctx, "AuditLog"); err != nil {
		return nil, err
	}
	var out []RoleAuditLog
	for _, e := range t.state.audit {
		if filter.Matches(&e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// WithinTx nests by running fn on the same snapshot.
func (t *memoryTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if err := t.check(ctx, "WithinTx"); err != nil {
		return err
	}
	return fn(ctx, t)
}

func paginate[T any](items []T, limit, offset int) []T {
	offset = max(offset, 0)
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if l := effectiveLimit(limit); len(items) > l {
		items = items[:l]
	}
	return items
}
