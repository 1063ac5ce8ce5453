package gallerykit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestParseRequestView tests parsing of listing views
func TestParseRequestView(t *testing.T) {
	tests := []struct {
		input    string
		expected RequestView
		wantErr  bool
	}{
		{"", RequestViewAll, false},
		{"all", RequestViewAll, false},
		{"pending", RequestViewPending, false},
		{" Processed ", RequestViewProcessed, false},
		{"archived", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			view, err := ParseRequestView(tt.input)
			if tt.wantErr {
				assert.True(t, IsValidation(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, view)
		})
	}
}

// TestRequestFilterMatches tests view and subject filtering
func TestRequestFilterMatches(t *testing.T) {
	pending := &ArtistRequest{SubjectID: "a", Status: RequestStatusPending}
	approved := &ArtistRequest{SubjectID: "a", Status: RequestStatusApproved}
	rejected := &ArtistRequest{SubjectID: "b", Status: RequestStatusRejected}

	all := NewRequestFilter()
	assert.True(t, all.Matches(pending))
	assert.True(t, all.Matches(approved))
	assert.True(t, all.Matches(rejected))

	onlyPending := NewRequestFilter().WithView(RequestViewPending)
	assert.True(t, onlyPending.Matches(pending))
	assert.False(t, onlyPending.Matches(approved))

	processed := NewRequestFilter().WithView(RequestViewProcessed)
	assert.False(t, processed.Matches(pending))
	assert.True(t, processed.Matches(approved))
	assert.True(t, processed.Matches(rejected))

	subject := NewRequestFilter().WithSubject("b")
	assert.False(t, subject.Matches(pending))
	assert.True(t, subject.Matches(rejected))
}

// TestRequestFilterImmutability tests that builders return copies
func TestRequestFilterImmutability(t *testing.T) {
	base := NewRequestFilter()
	derived := base.WithView(RequestViewPending).WithPagination(10, 20)

	assert.Equal(t, RequestViewAll, base.View)
	assert.Equal(t, 100, base.Limit)
	assert.Equal(t, RequestViewPending, derived.View)
	assert.Equal(t, 10, derived.Limit)
	assert.Equal(t, 20, derived.Offset)
}

// TestAuditLogFilterChaining tests chaining multiple filter methods
func TestAuditLogFilterChaining(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	filter := NewAuditLogFilter().
		WithActor("admin-1").
		WithTargetSubject("subject-1").
		WithAction(AuditActionGranted).
		WithRole(RoleArtist).
		WithTimeRange(since, until).
		WithPagination(50, 5)

	assert.Equal(t, "admin-1", filter.ActorID)
	assert.Equal(t, "subject-1", filter.TargetSubjectID)
	assert.Equal(t, "granted", filter.Action)
	assert.Equal(t, "artist", filter.Role)
	assert.Equal(t, since, filter.Since)
	assert.Equal(t, until, filter.Until)
	assert.Equal(t, 50, filter.Limit)
	assert.Equal(t, 5, filter.Offset)
}

// TestAuditLogFilterMatches tests in-memory filtering of audit entries
func TestAuditLogFilterMatches(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := &RoleAuditLog{
		Timestamp:       at,
		ActorID:         "admin-1",
		Action:          string(AuditActionGranted),
		TargetSubjectID: "subject-1",
		Role:            string(RoleArtist),
	}

	assert.True(t, NewAuditLogFilter().Matches(entry))
	assert.True(t, NewAuditLogFilter().WithActor("admin-1").Matches(entry))
	assert.False(t, NewAuditLogFilter().WithActor("admin-2").Matches(entry))
	assert.False(t, NewAuditLogFilter().WithAction(AuditActionRepaired).Matches(entry))
	assert.False(t, NewAuditLogFilter().WithRole(RoleAdmin).Matches(entry))
	assert.True(t, NewAuditLogFilter().WithTimeRange(at, at).Matches(entry))
	assert.False(t, NewAuditLogFilter().WithTimeRange(at.Add(time.Second), time.Time{}).Matches(entry))
	assert.False(t, NewAuditLogFilter().WithTimeRange(time.Time{}, at.Add(-time.Second)).Matches(entry))
}

// TestEffectiveLimit tests the default page size
func TestEffectiveLimit(t *testing.T) {
	assert.Equal(t, 100, effectiveLimit(0))
	assert.Equal(t, 100, effectiveLimit(-5))
	assert.Equal(t, 25, effectiveLimit(25))
}
