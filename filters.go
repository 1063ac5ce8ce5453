package gallerykit

import (
	"fmt"
	"strings"
	"time"
)

// RequestView selects which artist requests a listing returns.
type RequestView string

const (
	RequestViewPending   RequestView = "pending"
	RequestViewProcessed RequestView = "processed"
	RequestViewAll       RequestView = "all"
)

// ParseRequestView parses a listing view name. Empty means all.
func ParseRequestView(s string) (RequestView, error) {
	switch v := RequestView(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return RequestViewAll, nil
	case RequestViewPending, RequestViewProcessed, RequestViewAll:
		return v, nil
	default:
		return "", NewError(ErrValidation, fmt.Sprintf("unknown request view %q", s))
	}
}

// RequestFilter provides options for listing artist requests.
type RequestFilter struct {
	View RequestView

	// Filter by requesting subject
	SubjectID string

	// Pagination
	Limit  int
	Offset int
}

// NewRequestFilter creates a RequestFilter for all requests with the default limit.
func NewRequestFilter() RequestFilter {
	return RequestFilter{
		View:  RequestViewAll,
		Limit: 100,
	}
}

// WithView sets the view.
func (f RequestFilter) WithView(view RequestView) RequestFilter {
	f.View = view
	return f
}

// WithSubject restricts the listing to one subject.
func (f RequestFilter) WithSubject(subjectID string) RequestFilter {
	f.SubjectID = subjectID
	return f
}

// WithPagination sets both limit and offset.
func (f RequestFilter) WithPagination(limit, offset int) RequestFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// Matches reports whether req belongs to the filter, ignoring pagination.
func (f RequestFilter) Matches(req *ArtistRequest) bool {
	if f.SubjectID != "" && req.SubjectID != f.SubjectID {
		return false
	}
	switch f.View {
	case RequestViewPending:
		return req.Status == RequestStatusPending
	case RequestViewProcessed:
		return req.Status != RequestStatusPending
	}
	return true
}

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by actor who performed the action
	ActorID string

	// Filter by target subject of the action
	TargetSubjectID string

	// Filter by action type
	Action string

	// Filter by role
	Role string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditLogFilter creates a new AuditLogFilter with default values.
func NewAuditLogFilter() AuditLogFilter {
	return AuditLogFilter{
		Limit: 100,
	}
}

// WithActor sets the actor ID filter.
func (f AuditLogFilter) WithActor(actorID string) AuditLogFilter {
	f.ActorID = actorID
	return f
}

// WithTargetSubject sets the target subject filter.
func (f AuditLogFilter) WithTargetSubject(subjectID string) AuditLogFilter {
	f.TargetSubjectID = subjectID
	return f
}

// WithAction sets the action filter.
func (f AuditLogFilter) WithAction(action AuditAction) AuditLogFilter {
	f.Action = string(action)
	return f
}

// WithRole sets the role filter.
func (f AuditLogFilter) WithRole(role Role) AuditLogFilter {
	f.Role = string(role)
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditLogFilter) WithTimeRange(since, until time.Time) AuditLogFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithPagination sets both limit and offset.
func (f AuditLogFilter) WithPagination(limit, offset int) AuditLogFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}

// Matches reports whether entry belongs to the filter, ignoring pagination.
func (f AuditLogFilter) Matches(entry *RoleAuditLog) bool {
	if f.ActorID != "" && entry.ActorID != f.ActorID {
		return false
	}
	if f.TargetSubjectID != "" && entry.TargetSubjectID != f.TargetSubjectID {
		return false
	}
	if f.Action != "" && entry.Action != f.Action {
		return false
	}
	if f.Role != "" && entry.Role != f.Role {
		return false
	}
	if !f.Since.IsZero() && entry.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && entry.Timestamp.After(f.Until) {
		return false
	}
	return true
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
