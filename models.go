package gallerykit

import (
	"time"

	"github.com/uptrace/bun"
)

// RoleAssignment grants one role to one subject.
// A subject can hold several assignments; the highest rank wins.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:ra"`

	ID        string    `bun:"id,pk,type:uuid"`
	SubjectID string    `bun:"subject_id,notnull"`
	Role      string    `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

// RequestStatus is the persisted status of an artist request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// ArtistRequest is a subject's application for the artist role.
type ArtistRequest struct {
	bun.BaseModel `bun:"table:artist_requests,alias:ar"`

	ID         string        `bun:"id,pk,type:uuid"`
	SubjectID  string        `bun:"subject_id,notnull"`
	Message    string        `bun:"message,notnull"`
	Status     RequestStatus `bun:"status,notnull"`
	CreatedAt  time.Time     `bun:"created_at,notnull"`
	ReviewedBy *string       `bun:"reviewed_by"`
	ReviewedAt *time.Time    `bun:"reviewed_at"`
}

// Profile is the public display profile of a subject. It is owned elsewhere
// and only read here.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:p"`

	SubjectID   string `bun:"subject_id,pk"`
	DisplayName string `bun:"display_name"`
	Bio         string `bun:"bio"`
}

// ArtistRequestView is an artist request joined with the requester's profile.
// Profile is nil when the requester has none.
type ArtistRequestView struct {
	ArtistRequest
	Profile *Profile
}

// Artwork is a piece listed by an artist.
type Artwork struct {
	bun.BaseModel `bun:"table:artworks,alias:aw"`

	ID          string    `bun:"id,pk,type:uuid" json:"id"`
	ArtistID    string    `bun:"artist_id,notnull" json:"artist_id"`
	ArtistName  string    `bun:"artist_name,notnull" json:"artist_name"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description" json:"description"`
	Category    string    `bun:"category,notnull" json:"category"`
	Medium      string    `bun:"medium,notnull" json:"medium"`
	Dimensions  *string   `bun:"dimensions" json:"dimensions"`
	Price       *float64  `bun:"price" json:"price"`
	ImageURL    *string   `bun:"image_url" json:"image_url"`
	Available   bool      `bun:"is_available,notnull" json:"is_available"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RoleAuditLog records every role grant for compliance and debugging.
type RoleAuditLog struct {
	bun.BaseModel `bun:"table:role_audit_log,alias:ral"`

	ID        string    `bun:"id,pk,type:uuid" json:"id"`
	Timestamp time.Time `bun:"timestamp,notnull" json:"timestamp"`

	// Who performed the action
	ActorID string `bun:"actor_id,notnull" json:"actor_id"`

	Action string `bun:"action,notnull" json:"action"`

	TargetSubjectID string `bun:"target_subject_id,notnull" json:"target_subject_id"`
	Role            string `bun:"role,notnull" json:"role"`

	// Artist request that caused the change, if any
	ArtistRequestID string `bun:"artist_request_id" json:"artist_request_id"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address" json:"ip_address"`
	UserAgent string `bun:"user_agent" json:"user_agent"`
	RequestID string `bun:"request_id" json:"request_id"`
}

// AuditAction represents the type of action in the audit log.
type AuditAction string

const (
	AuditActionGranted  AuditAction = "granted"
	AuditActionRepaired AuditAction = "repaired"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID         string
	Action          AuditAction
	TargetSubjectID string
	Role            Role
	ArtistRequestID string
	IPAddress       string
	UserAgent       string
	RequestID       string
}

// ToModel converts an AuditEntry to a RoleAuditLog model stamped at now.
func (e *AuditEntry) ToModel(id string, now time.Time) *RoleAuditLog {
	return &RoleAuditLog{
		ID:              id,
		Timestamp:       now,
		ActorID:         e.ActorID,
		Action:          string(e.Action),
		TargetSubjectID: e.TargetSubjectID,
		Role:            string(e.Role),
		ArtistRequestID: e.ArtistRequestID,
		IPAddress:       e.IPAddress,
		UserAgent:       e.UserAgent,
		RequestID:       e.RequestID,
	}
}
