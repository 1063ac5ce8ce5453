package gallerykit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// testClock hands out strictly increasing timestamps so ordering by
// creation time is deterministic.
type testClock struct {
	mu   sync.Mutex
	next time.Time
}

func newTestClock() *testClock {
	return &testClock{next: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

// testIDs generates readable sequential IDs.
type testIDs struct {
	mu sync.Mutex
	n  int
}

func (g *testIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%03d", g.n)
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

// fixture bundles a memory store and a service wired to it.
type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *MemoryStore
	service *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := NewMemoryStore()
	clock := newTestClock()
	ids := &testIDs{}
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(clock.Now),
		WithIDGenerator(ids.New),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	}
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		service: NewService(store, append(base, opts...)...),
	}
}

// grant stores a raw role assignment.
func (f *fixture) grant(subjectID, role string) {
	f.t.Helper()
	_, err := f.store.GrantRole(f.ctx, &RoleAssignment{
		ID:        fmt.Sprintf("grant-%s-%s", subjectID, role),
		SubjectID: subjectID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(f.t, err)
}

func (f *fixture) session(subjectID string) *Session {
	return f.service.NewSession(subjectID)
}

// admin returns a session for a subject holding the admin role.
func (f *fixture) admin() *Session {
	f.grant("admin-1", string(RoleAdmin))
	return f.session("admin-1")
}

// submit files a request for subjectID and fails the test on error.
func (f *fixture) submit(subjectID, message string) *ArtistRequest {
	f.t.Helper()
	req, err := f.service.Submit(f.ctx, f.session(subjectID), message)
	require.NoError(f.t, err)
	return req
}

func (f *fixture) request(id string) *ArtistRequest {
	f.t.Helper()
	req, err := f.store.ArtistRequest(f.ctx, id)
	require.NoError(f.t, err)
	return req
}

func (f *fixture) effectiveRole(subjectID string) Role {
	f.t.Helper()
	role, err := f.session(subjectID).EffectiveRole(f.ctx)
	require.NoError(f.t, err)
	return role
}
