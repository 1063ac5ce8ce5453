package gallerykit

import (
	"context"
	"sync"
)

// Session answers role questions for one caller. It is created per request by
// the Service and usually stored in the request context by middleware.
//
// The effective role is read from the store on first use and cached until
// Refresh is called.
type Session struct {
	subjectID string
	service   *Service

	mu        sync.Mutex
	loaded    bool
	effective Role
}

// NewSession creates a session for subjectID. An empty subjectID gives an
// anonymous session that always resolves to RoleUser.
func (s *Service) NewSession(subjectID string) *Session {
	return &Session{subjectID: subjectID, service: s}
}

// SubjectID returns the subject this session is for.
func (c *Session) SubjectID() string {
	return c.subjectID
}

// IsAnonymous reports whether the session has no authenticated subject.
func (c *Session) IsAnonymous() bool {
	return c.subjectID == ""
}

// EffectiveRole returns the cached effective role, loading it on first use.
func (c *Session) EffectiveRole(ctx context.Context) (Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.effective, nil
	}
	return c.load(ctx)
}

// Refresh re-reads the subject's assignments and returns the new effective role.
func (c *Session) Refresh(ctx context.Context) (Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

// load must be called with c.mu held. A failed read clears the cache.
func (c *Session) load(ctx context.Context) (Role, error) {
	if c.IsAnonymous() {
		c.effective, c.loaded = RoleUser, true
		return RoleUser, nil
	}
	assignments, err := c.service.store.RoleAssignments(ctx, c.subjectID)
	if err != nil {
		c.loaded = false
		return RoleUser, dependencyError(err, "load role assignments")
	}
	c.effective, c.loaded = ResolveEffectiveRole(assignments), true
	return c.effective, nil
}

// Can reports whether the caller holds at least required.
// It fails closed: an anonymous session is only granted RoleUser, and a store
// failure denies everything.
//
// Example:
//
//	if session.Can(ctx, gallerykit.RoleArtist) {
//	    // show "Add artwork"
//	}
func (c *Session) Can(ctx context.Context, required Role) bool {
	effective, err := c.EffectiveRole(ctx)
	if err != nil {
		c.service.logger.WithError(err).
			WithField("subject_id", c.subjectID).
			Warn("role lookup failed, denying capability")
		return false
	}
	return HasCapability(effective, required)
}

// Allows reports whether the caller may use a named feature.
// Features missing from the registry are denied.
//
// Example:
//
//	if session.Allows(ctx, gallerykit.FeatureArtworksCreate) {
//	    // render the upload form
//	}
func (c *Session) Allows(ctx context.Context, feature string) bool {
	required, ok := c.service.registry.RequiredRole(feature)
	if !ok {
		return false
	}
	return c.Can(ctx, required)
}

// require returns ErrUnauthorized unless the caller holds at least role.
// With refresh set the role is re-read from the store first.
func (c *Session) require(ctx context.Context, role Role, refresh bool) error {
	var (
		effective Role
		err       error
	)
	if refresh {
		effective, err = c.Refresh(ctx)
	} else {
		effective, err = c.EffectiveRole(ctx)
	}
	if err != nil {
		return err
	}
	if !HasCapability(effective, role) {
		return NewError(ErrUnauthorized, "insufficient role").
			WithActor(c.subjectID).
			WithRole(role)
	}
	return nil
}
