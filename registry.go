package gallerykit

import (
	"fmt"
	"sync"
)

// Well-known gallery features.
const (
	FeatureGalleryView    = "gallery.view"
	FeatureRequestsSubmit = "requests.submit"
	FeatureArtworksCreate = "artworks.create"
	FeatureArtworksUpdate = "artworks.update"
	FeatureProfileEdit    = "profile.edit"
	FeatureRequestsReview = "requests.review"
	FeatureDashboardView  = "dashboard.view"
	FeatureAuditLogView   = "audit.view"
)

// KnownFeatures lists the well-known features in display order.
var KnownFeatures = []string{
	FeatureGalleryView,
	FeatureRequestsSubmit,
	FeatureArtworksCreate,
	FeatureArtworksUpdate,
	FeatureProfileEdit,
	FeatureRequestsReview,
	FeatureDashboardView,
	FeatureAuditLogView,
}

// Registry maps feature names to the minimum role that unlocks them.
// It is created at startup and should be treated as immutable after initialization.
type Registry struct {
	mu    sync.RWMutex
	rules []featureRule
}

type featureRule struct {
	pattern string
	role    Role
}

// NewRegistry creates an empty feature registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns the feature gates used by the gallery front-end.
func DefaultRegistry() *Registry {
	return NewRegistry().
		Require(RoleUser, "gallery.*", FeatureRequestsSubmit).
		Require(RoleArtist, "artworks.*", FeatureProfileEdit).
		Require(RoleAdmin, FeatureRequestsReview, "dashboard.*", "audit.*")
}

// Require registers patterns that need at least role.
// Invalid patterns or roles panic, since registries are built at startup.
//
// Example:
//
//	registry.Require(gallerykit.RoleArtist, "artworks.*").
//	    Require(gallerykit.RoleAdmin, "requests.review")
func (r *Registry) Require(role Role, patterns ...string) *Registry {
	if !role.Valid() {
		panic(fmt.Sprintf("gallerykit: unknown role %q", role))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range patterns {
		if err := DefaultMatcher.Validate(p); err != nil {
			panic(fmt.Sprintf("gallerykit: invalid feature pattern %q: %v", p, err))
		}
		r.rules = append(r.rules, featureRule{pattern: p, role: role})
	}
	return r
}

// RequiredRole returns the role needed for feature: the highest role among
// all matching patterns. The second value is false when nothing matches.
func (r *Registry) RequiredRole(feature string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		required Role
		found    bool
	)
	for _, rule := range r.rules {
		if !DefaultMatcher.Match(rule.pattern, feature) {
			continue
		}
		if !found || rule.role.Rank() > required.Rank() {
			required = rule.role
			found = true
		}
	}
	return required, found
}

// Features returns all registered patterns grouped by role.
func (r *Registry) Features() map[Role][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Role][]string)
	for _, rule := range r.rules {
		out[rule.role] = append(out[rule.role], rule.pattern)
	}
	return out
}

// AllowedFeatures returns the well-known features that effective unlocks.
func (r *Registry) AllowedFeatures(effective Role) []string {
	out := []string{}
	for _, feature := range KnownFeatures {
		if r.Allows(effective, feature) {
			out = append(out, feature)
		}
	}
	return out
}

// Allows reports whether effective unlocks feature. Unknown features are denied.
func (r *Registry) Allows(effective Role, feature string) bool {
	required, ok := r.RequiredRole(feature)
	if !ok {
		return false
	}
	return HasCapability(effective, required)
}
