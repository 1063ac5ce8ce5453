package gallerykit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	*MemoryStore

	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.fails
	f.mu.Unlock()
	if fail {
		return errors.New("pq: could not serialize access due to concurrent update")
	}
	return f.MemoryStore.WithinTx(ctx, fn)
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		input   string
		want    Decision
		wantErr bool
	}{
		{"approve", DecisionApprove, false},
		{"approved", DecisionApprove, false},
		{" Reject ", DecisionReject, false},
		{"rejected", DecisionReject, false},
		{"maybe", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecision(tt.input)
			if tt.wantErr {
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestSubmit tests filing an artist request
func TestSubmit(t *testing.T) {
	f := newFixture(t)

	req, err := f.service.Submit(f.ctx, f.session("painter"), "  I paint landscapes  ")
	require.NoError(t, err)
	assert.Equal(t, "painter", req.SubjectID)
	assert.Equal(t, "I paint landscapes", req.Message)
	assert.Equal(t, RequestStatusPending, req.Status)
	assert.Nil(t, req.ReviewedBy)
	assert.Nil(t, req.ReviewedAt)

	stored := f.request(req.ID)
	assert.Equal(t, req.Message, stored.Message)
	assert.Equal(t, RequestStatusPending, stored.Status)
}

// TestSubmitValidation tests that blank messages never reach the store
func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("RoleAssignments", errors.New("must not be called"))
	f.store.FailOn("CreateArtistRequest", errors.New("must not be called"))

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := f.service.Submit(f.ctx, f.session("painter"), msg)
		assert.True(t, IsValidation(err), "message %q", msg)
	}
}

// TestSubmitRejections tests the states in which a request is refused
func TestSubmitRejections(t *testing.T) {
	t.Run("Anonymous", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Submit(f.ctx, f.session(""), "hello")
		assert.True(t, IsUnauthorized(err))

		_, err = f.service.Submit(f.ctx, nil, "hello")
		assert.True(t, IsUnauthorized(err))
	})

	t.Run("Already an artist", func(t *testing.T) {
		f := newFixture(t)
		f.grant("painter", "artist")
		_, err := f.service.Submit(f.ctx, f.session("painter"), "again")
		assert.True(t, IsConsistency(err))
	})

	t.Run("Admin", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Submit(f.ctx, f.admin(), "promote me")
		assert.True(t, IsConsistency(err))
	})

	t.Run("Pending request exists", func(t *testing.T) {
		f := newFixture(t)
		first := f.submit("painter", "first")

		_, err := f.service.Submit(f.ctx, f.session("painter"), "second")
		assert.True(t, IsConsistency(err))

		var gErr *Error
		require.ErrorAs(t, err, &gErr)
		assert.Equal(t, first.ID, gErr.RequestID)
	})

	t.Run("Store failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.FailOn("CreateArtistRequest", errors.New("connection reset by peer"))
		_, err := f.service.Submit(f.ctx, f.session("painter"), "hello")
		assert.True(t, IsDependency(err))
	})
}

// TestSubmitAfterRejection tests that a rejected subject may apply again
func TestSubmitAfterRejection(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	first := f.submit("painter", "first")

	_, err := f.service.Resolve(f.ctx, admin, first.ID, DecisionReject)
	require.NoError(t, err)

	second, err := f.service.Submit(f.ctx, f.session("painter"), "second try")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	status, err := f.service.Status(f.ctx, f.session("painter"))
	require.NoError(t, err)
	assert.Equal(t, RequestStatePending, status.State)
	assert.Equal(t, second.ID, status.Request.ID)
}

// TestResolveApprove tests that approval grants the artist role and audits it
func TestResolveApprove(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	req := f.submit("painter", "please")

	ctx := WithAuditContext(f.ctx, AuditContext{IPAddress: "10.1.1.1", UserAgent: "test", RequestID: "corr-9"})
	resolved, err := f.service.Resolve(ctx, admin, req.ID, DecisionApprove)
	require.NoError(t, err)

	assert.Equal(t, RequestStatusApproved, resolved.Status)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, "admin-1", *resolved.ReviewedBy)
	require.NotNil(t, resolved.ReviewedAt)
	assert.True(t, resolved.ReviewedAt.After(req.CreatedAt))

	assert.Equal(t, RoleArtist, f.effectiveRole("painter"))

	entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter().WithTargetSubject("painter"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ActorID)
	assert.Equal(t, string(AuditActionGranted), entries[0].Action)
	assert.Equal(t, string(RoleArtist), entries[0].Role)
	assert.Equal(t, req.ID, entries[0].ArtistRequestID)
	assert.Equal(t, "10.1.1.1", entries[0].IPAddress)
	assert.Equal(t, "test", entries[0].UserAgent)
	assert.Equal(t, "corr-9", entries[0].RequestID)
}

// TestResolveReject tests that rejection leaves roles unchanged
func TestResolveReject(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	req := f.submit("painter", "please")

	resolved, err := f.service.Resolve(f.ctx, admin, req.ID, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusRejected, resolved.Status)
	require.NotNil(t, resolved.ReviewedBy)
	assert.Equal(t, "admin-1", *resolved.ReviewedBy)

	assert.Equal(t, RoleUser, f.effectiveRole("painter"))

	entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestResolveTerminal tests that resolved requests cannot change again
func TestResolveTerminal(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	req := f.submit("painter", "please")

	_, err := f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
	require.NoError(t, err)

	_, err = f.service.Resolve(f.ctx, admin, req.ID, DecisionReject)
	assert.True(t, IsConsistency(err))
	_, err = f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
	assert.True(t, IsConsistency(err))

	assert.Equal(t, RequestStatusApproved, f.request(req.ID).Status)
	assert.Equal(t, RoleArtist, f.effectiveRole("painter"))

	entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// TestResolveAuthorization tests that only fresh admins can resolve
func TestResolveAuthorization(t *testing.T) {
	t.Run("Non-admin", func(t *testing.T) {
		f := newFixture(t)
		f.grant("painter-2", "artist")
		req := f.submit("painter", "please")

		for _, subject := range []string{"visitor", "painter-2", "painter"} {
			_, err := f.service.Resolve(f.ctx, f.session(subject), req.ID, DecisionApprove)
			assert.True(t, IsUnauthorized(err), subject)
		}
		_, err := f.service.Resolve(f.ctx, f.session(""), req.ID, DecisionApprove)
		assert.True(t, IsUnauthorized(err))

		assert.Equal(t, RequestStatusPending, f.request(req.ID).Status)
		assert.Equal(t, RoleUser, f.effectiveRole("painter"))
	})

	t.Run("Stale cached admin role", func(t *testing.T) {
		f := newFixture(t)
		f.grant("mod", "user")
		session := f.session("mod")
		req := f.submit("painter", "please")

		// Cached as user; the grant that follows is picked up by the refresh
		assert.False(t, session.Can(f.ctx, RoleAdmin))
		f.grant("mod", "admin")

		_, err := f.service.Resolve(f.ctx, session, req.ID, DecisionApprove)
		require.NoError(t, err)
	})

	t.Run("Legacy superuser", func(t *testing.T) {
		f := newFixture(t)
		f.grant("root", "superuser")
		req := f.submit("painter", "please")

		_, err := f.service.Resolve(f.ctx, f.session("root"), req.ID, DecisionReject)
		require.NoError(t, err)
	})
}

// TestResolveValidation tests input checks
func TestResolveValidation(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()

	_, err := f.service.Resolve(f.ctx, admin, "", DecisionApprove)
	assert.True(t, IsValidation(err))

	_, err = f.service.Resolve(f.ctx, admin, "id-1", Decision("defer"))
	assert.True(t, IsValidation(err))

	_, err = f.service.Resolve(f.ctx, admin, "missing", DecisionApprove)
	assert.True(t, IsNotFound(err))
}

// TestResolveAtomicity tests that a failed grant rolls back the status change
func TestResolveAtomicity(t *testing.T) {
	for _, method := range []string{"GrantRole", "LogAudit", "ArtistRequest"} {
		t.Run(method, func(t *testing.T) {
			f := newFixture(t)
			admin := f.admin()
			req := f.submit("painter", "please")

			f.store.FailOn(method, errors.New("connection reset by peer"))
			_, err := f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
			assert.True(t, IsDependency(err))
			f.store.FailOn(method, nil)

			stored := f.request(req.ID)
			assert.Equal(t, RequestStatusPending, stored.Status)
			assert.Nil(t, stored.ReviewedBy)
			assert.Equal(t, RoleUser, f.effectiveRole("painter"))

			entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter())
			require.NoError(t, err)
			assert.Empty(t, entries)

			// The request can still be approved once the store recovers
			resolved, err := f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
			require.NoError(t, err)
			assert.Equal(t, RequestStatusApproved, resolved.Status)
			assert.Equal(t, RoleArtist, f.effectiveRole("painter"))
		})
	}
}

// TestResolveRetriesTransientFailures tests the transaction retry loop
func TestResolveRetriesTransientFailures(t *testing.T) {
	t.Run("Recovers", func(t *testing.T) {
		mem := NewMemoryStore()
		store := &flakyStore{MemoryStore: mem, fails: 2}
		service := NewService(store,
			WithLogger(quietLogger()),
			WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}),
		)
		ctx := context.Background()
		_, err := mem.GrantRole(ctx, &RoleAssignment{ID: "a", SubjectID: "admin-1", Role: "admin"})
		require.NoError(t, err)
		req, err := service.Submit(ctx, service.NewSession("painter"), "please")
		require.NoError(t, err)

		resolved, err := service.Resolve(ctx, service.NewSession("admin-1"), req.ID, DecisionApprove)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusApproved, resolved.Status)
		assert.Equal(t, 3, store.calls)
	})

	t.Run("Gives up", func(t *testing.T) {
		mem := NewMemoryStore()
		store := &flakyStore{MemoryStore: mem, fails: 10}
		service := NewService(store,
			WithLogger(quietLogger()),
			WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}),
		)
		ctx := context.Background()
		_, err := mem.GrantRole(ctx, &RoleAssignment{ID: "a", SubjectID: "admin-1", Role: "admin"})
		require.NoError(t, err)
		req, err := service.Submit(ctx, service.NewSession("painter"), "please")
		require.NoError(t, err)

		_, err = service.Resolve(ctx, service.NewSession("admin-1"), req.ID, DecisionApprove)
		assert.True(t, IsDependency(err))
		assert.Equal(t, 2, store.calls)

		stored, err := mem.ArtistRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, RequestStatusPending, stored.Status)
	})

	t.Run("Consistency errors are not retried", func(t *testing.T) {
		mem := NewMemoryStore()
		store := &flakyStore{MemoryStore: mem}
		service := NewService(store, WithLogger(quietLogger()))
		ctx := context.Background()
		_, err := mem.GrantRole(ctx, &RoleAssignment{ID: "a", SubjectID: "admin-1", Role: "admin"})
		require.NoError(t, err)
		req, err := service.Submit(ctx, service.NewSession("painter"), "please")
		require.NoError(t, err)

		admin := service.NewSession("admin-1")
		_, err = service.Resolve(ctx, admin, req.ID, DecisionReject)
		require.NoError(t, err)
		_, err = service.Resolve(ctx, admin, req.ID, DecisionApprove)
		assert.True(t, IsConsistency(err))
		assert.Equal(t, 2, store.calls)
	})
}

// TestResolveConcurrent tests that concurrent decisions yield one winner
func TestResolveConcurrent(t *testing.T) {
	f := newFixture(t)
	f.grant("admin-1", "admin")
	f.grant("admin-2", "admin")
	req := f.submit("painter", "please")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	decisions := []Decision{DecisionApprove, DecisionReject, DecisionApprove, DecisionReject}
	for i, d := range decisions {
		wg.Add(1)
		go func(actor string, d Decision) {
			defer wg.Done()
			_, err := f.service.Resolve(f.ctx, f.session(actor), req.ID, d)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsConsistency(err):
				conflicts++
			}
		}([]string{"admin-1", "admin-2"}[i%2], d)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, len(decisions)-1, conflicts)

	stored := f.request(req.ID)
	entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter())
	require.NoError(t, err)
	if stored.Status == RequestStatusApproved {
		assert.Equal(t, RoleArtist, f.effectiveRole("painter"))
		assert.Len(t, entries, 1)
	} else {
		assert.Equal(t, RequestStatusRejected, stored.Status)
		assert.Equal(t, RoleUser, f.effectiveRole("painter"))
		assert.Empty(t, entries)
	}
}

// TestStatus tests the caller's view of their latest request
func TestStatus(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()

	status, err := f.service.Status(f.ctx, f.session(""))
	require.NoError(t, err)
	assert.Equal(t, RequestStateNone, status.State)
	assert.True(t, status.CanSubmit())

	status, err = f.service.Status(f.ctx, f.session("painter"))
	require.NoError(t, err)
	assert.Equal(t, RequestStateNone, status.State)
	assert.Nil(t, status.Request)

	req := f.submit("painter", "please")
	status, err = f.service.Status(f.ctx, f.session("painter"))
	require.NoError(t, err)
	assert.Equal(t, RequestStatePending, status.State)
	assert.False(t, status.CanSubmit())

	_, err = f.service.Resolve(f.ctx, admin, req.ID, DecisionReject)
	require.NoError(t, err)
	status, err = f.service.Status(f.ctx, f.session("painter"))
	require.NoError(t, err)
	assert.Equal(t, RequestStateRejected, status.State)
	assert.True(t, status.CanSubmit())

	req = f.submit("painter", "again")
	_, err = f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
	require.NoError(t, err)
	status, err = f.service.Status(f.ctx, f.session("painter"))
	require.NoError(t, err)
	assert.Equal(t, RequestStateApproved, status.State)
	assert.False(t, status.CanSubmit())

	f.store.FailOn("LatestArtistRequest", errors.New("broken pipe"))
	_, err = f.service.Status(f.ctx, f.session("painter"))
	assert.True(t, IsDependency(err))
}

// TestListRequests tests the admin listing joined with profiles
func TestListRequests(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	f.store.PutProfile(Profile{SubjectID: "painter", DisplayName: "Ada", Bio: "Oils"})

	empty, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter())
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first := f.submit("painter", "first")
	second := f.submit("sculptor", "second")
	_, err = f.service.Resolve(f.ctx, admin, first.ID, DecisionReject)
	require.NoError(t, err)
	third := f.submit("painter", "third")

	all, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)

	require.NotNil(t, all[0].Profile)
	assert.Equal(t, "Ada", all[0].Profile.DisplayName)
	assert.Nil(t, all[1].Profile)

	pending, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter().WithView(RequestViewPending))
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	processed, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter().WithView(RequestViewProcessed))
	require.NoError(t, err)
	require.Len(t, processed, 1)
	assert.Equal(t, first.ID, processed[0].ID)

	page, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter().WithPagination(1, 1))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	negative, err := f.service.ListRequests(f.ctx, admin, NewRequestFilter().WithPagination(10, -1))
	require.NoError(t, err)
	assert.Len(t, negative, 3)
}

// TestListRequestsRequiresAdmin tests the listing gate
func TestListRequestsRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.grant("painter", "artist")

	for _, session := range []*Session{nil, f.session(""), f.session("visitor"), f.session("painter")} {
		_, err := f.service.ListRequests(f.ctx, session, NewRequestFilter())
		assert.True(t, IsUnauthorized(err))
	}
}

// TestReconcile tests repair of approved requests without a grant
func TestReconcile(t *testing.T) {
	f := newFixture(t)
	reviewer := "admin-1"
	reviewedAt := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	// Approved before grants were atomic
	require.NoError(t, f.store.CreateArtistRequest(f.ctx, &ArtistRequest{
		ID: "legacy-1", SubjectID: "painter", Message: "old", Status: RequestStatusApproved,
		CreatedAt: reviewedAt.Add(-time.Hour), ReviewedBy: &reviewer, ReviewedAt: &reviewedAt,
	}))
	// Approved and already an admin: nothing to do
	f.grant("boss", "admin")
	require.NoError(t, f.store.CreateArtistRequest(f.ctx, &ArtistRequest{
		ID: "legacy-2", SubjectID: "boss", Message: "old", Status: RequestStatusApproved,
		CreatedAt: reviewedAt.Add(-time.Hour), ReviewedBy: &reviewer, ReviewedAt: &reviewedAt,
	}))

	repaired, err := f.service.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, RoleArtist, f.effectiveRole("painter"))

	entries, err := f.store.AuditLog(f.ctx, NewAuditLogFilter().WithAction(AuditActionRepaired))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, SystemActor, entries[0].ActorID)
	assert.Equal(t, "painter", entries[0].TargetSubjectID)
	assert.Equal(t, "legacy-1", entries[0].ArtistRequestID)

	repaired, err = f.service.Reconcile(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)

	f.store.FailOn("UngrantedApprovals", errors.New("bad connection"))
	_, err = f.service.Reconcile(f.ctx)
	assert.True(t, IsDependency(err))
}

// TestAuditLogRequiresAdmin tests audit log access
func TestAuditLogRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	admin := f.admin()
	req := f.submit("painter", "please")
	_, err := f.service.Resolve(f.ctx, admin, req.ID, DecisionApprove)
	require.NoError(t, err)

	entries, err := f.service.AuditLog(f.ctx, admin, NewAuditLogFilter())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = f.service.AuditLog(f.ctx, admin, NewAuditLogFilter().WithPagination(10, -5))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = f.service.AuditLog(f.ctx, f.session("painter"), NewAuditLogFilter())
	assert.True(t, IsUnauthorized(err))
	_, err = f.service.AuditLog(f.ctx, nil, NewAuditLogFilter())
	assert.True(t, IsUnauthorized(err))
}
