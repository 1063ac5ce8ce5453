package gallerykit

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Decision is an admin's verdict on an artist request.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "approve"/"approved" and "reject"/"rejected".
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	default:
		return "", NewError(ErrValidation, fmt.Sprintf("unknown decision %q", s))
	}
}

func (d Decision) status() (RequestStatus, bool) {
	switch d {
	case DecisionApprove:
		return RequestStatusApproved, true
	case DecisionReject:
		return RequestStatusRejected, true
	}
	return "", false
}

// RequestState is where a subject stands in the artist request workflow.
type RequestState string

const (
	RequestStateNone     RequestState = "NONE"
	RequestStatePending  RequestState = "PENDING"
	RequestStateApproved RequestState = "APPROVED"
	RequestStateRejected RequestState = "REJECTED"
)

// RequestStatusView describes the caller's latest artist request.
type RequestStatusView struct {
	State   RequestState
	Request *ArtistRequest
}

// CanSubmit reports whether a new request would be accepted for this state.
func (v RequestStatusView) CanSubmit() bool {
	return v.State == RequestStateNone || v.State == RequestStateRejected
}

// SystemActor is the actor recorded for grants made by Reconcile.
const SystemActor = "system"

// Submit files an artist request for the session's subject.
//
// The message is trimmed and must not be empty. Subjects that already hold
// the artist role, or that have a pending request, get ErrConsistency.
func (s *Service) Submit(ctx context.Context, session *Session, message string) (*ArtistRequest, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, NewError(ErrValidation, "message must not be empty")
	}
	if session == nil || session.IsAnonymous() {
		return nil, NewError(ErrUnauthorized, "sign in to request the artist role")
	}
	subjectID := session.SubjectID()

	role, err := session.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	if HasCapability(role, RoleArtist) {
		return nil, NewError(ErrConsistency, "subject already holds the artist role").
			WithSubject(subjectID).
			WithRole(role)
	}

	latest, err := s.store.LatestArtistRequest(ctx, subjectID)
	if err != nil {
		return nil, dependencyError(err, "load latest artist request")
	}
	if latest != nil && latest.Status == RequestStatusPending {
		return nil, NewError(ErrConsistency, "a pending request already exists").
			WithSubject(subjectID).
			WithRequest(latest.ID)
	}

	req := &ArtistRequest{
		ID:        s.newID(),
		SubjectID: subjectID,
		Message:   message,
		Status:    RequestStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateArtistRequest(ctx, req); err != nil {
		return nil, dependencyError(err, "create artist request")
	}

	s.metrics.requestSubmitted()
	s.logger.WithFields(log.Fields{
		"subject_id": subjectID,
		"request_id": req.ID,
	}).Info("artist request submitted")
	return req, nil
}

// Resolve approves or rejects a pending artist request.
//
// The caller's role is re-read from the store and must be admin. The status
// change, the artist grant and its audit entry commit together or not at all.
// Resolving a request that is no longer pending fails with ErrConsistency.
func (s *Service) Resolve(ctx context.Context, session *Session, requestID string, decision Decision) (*ArtistRequest, error) {
	status, ok := decision.status()
	if !ok {
		return nil, NewError(ErrValidation, fmt.Sprintf("unknown decision %q", decision))
	}
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, NewError(ErrValidation, "request id must not be empty")
	}
	if session == nil || session.IsAnonymous() {
		return nil, NewError(ErrUnauthorized, "sign in to review requests")
	}
	if err := session.require(ctx, RoleAdmin, true); err != nil {
		return nil, err
	}
	actorID := session.SubjectID()
	audit := GetAuditContext(ctx)

	var (
		resolved *ArtistRequest
		granted  bool
	)
	err := s.transaction(ctx, "resolve_artist_request", func(ctx context.Context, tx Store) error {
		granted = false

		req, err := tx.ArtistRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestStatusPending {
			return NewError(ErrConsistency, fmt.Sprintf("request is already %s", req.Status)).
				WithRequest(requestID).
				WithActor(actorID)
		}

		now := s.now()
		changed, err := tx.ResolveArtistRequest(ctx, requestID, status, actorID, now)
		if err != nil {
			return err
		}
		if !changed {
			return NewError(ErrConsistency, "request was resolved concurrently").
				WithRequest(requestID).
				WithActor(actorID)
		}

		if status == RequestStatusApproved {
			granted, err = s.grantArtist(ctx, tx, req, actorID, AuditActionGranted, audit)
			if err != nil {
				return err
			}
		}

		resolved, err = tx.ArtistRequest(ctx, requestID)
		return err
	})
	if err != nil {
		if IsConsistency(err) || IsNotFound(err) {
			s.logger.WithFields(log.Fields{
				"actor_id":   actorID,
				"request_id": requestID,
				"decision":   decision,
			}).WithError(err).Info("artist request not resolved")
		}
		return nil, dependencyError(err, "resolve artist request")
	}

	s.metrics.requestResolved(decision)
	if granted {
		s.metrics.roleGranted(RoleArtist, "approval")
	}
	s.logger.WithFields(log.Fields{
		"actor_id":   actorID,
		"request_id": requestID,
		"subject_id": resolved.SubjectID,
		"decision":   decision,
	}).Info("artist request resolved")
	return resolved, nil
}

// grantArtist gives the request's subject the artist role and records the
// grant. Nothing is logged when the subject already held it.
func (s *Service) grantArtist(ctx context.Context, tx Store, req *ArtistRequest, actorID string, action AuditAction, audit AuditContext) (bool, error) {
	now := s.now()
	created, err := tx.GrantRole(ctx, &RoleAssignment{
		ID:        s.newID(),
		SubjectID: req.SubjectID,
		Role:      string(RoleArtist),
		CreatedAt: now,
	})
	if err != nil || !created {
		return false, err
	}

	entry := &AuditEntry{
		ActorID:         actorID,
		Action:          action,
		TargetSubjectID: req.SubjectID,
		Role:            RoleArtist,
		ArtistRequestID: req.ID,
		IPAddress:       audit.IPAddress,
		UserAgent:       audit.UserAgent,
		RequestID:       audit.RequestID,
	}
	if err := tx.LogAudit(ctx, entry.ToModel(s.newID(), now)); err != nil {
		return false, err
	}
	return true, nil
}

// ListRequests returns artist requests joined with the requester's profile,
// newest first. Only admins may list requests.
func (s *Service) ListRequests(ctx context.Context, session *Session, filter RequestFilter) ([]ArtistRequestView, error) {
	if session == nil {
		return nil, NewError(ErrUnauthorized, "no session")
	}
	if err := session.require(ctx, RoleAdmin, false); err != nil {
		return nil, err
	}

	reqs, err := s.store.ArtistRequests(ctx, filter)
	if err != nil {
		return nil, dependencyError(err, "list artist requests")
	}
	if len(reqs) == 0 {
		return []ArtistRequestView{}, nil
	}

	ids := make([]string, 0, len(reqs))
	seen := make(map[string]bool, len(reqs))
	for _, r := range reqs {
		if !seen[r.SubjectID] {
			seen[r.SubjectID] = true
			ids = append(ids, r.SubjectID)
		}
	}
	profiles, err := s.store.Profiles(ctx, ids)
	if err != nil {
		return nil, dependencyError(err, "load profiles")
	}
	bySubject := make(map[string]*Profile, len(profiles))
	for i := range profiles {
		bySubject[profiles[i].SubjectID] = &profiles[i]
	}

	views := make([]ArtistRequestView, len(reqs))
	for i, r := range reqs {
		views[i] = ArtistRequestView{ArtistRequest: r, Profile: bySubject[r.SubjectID]}
	}
	return views, nil
}

// Status returns the state of the caller's most recent artist request.
// Anonymous sessions are always in RequestStateNone.
func (s *Service) Status(ctx context.Context, session *Session) (RequestStatusView, error) {
	if session == nil || session.IsAnonymous() {
		return RequestStatusView{State: RequestStateNone}, nil
	}
	latest, err := s.store.LatestArtistRequest(ctx, session.SubjectID())
	if err != nil {
		return RequestStatusView{}, dependencyError(err, "load latest artist request")
	}
	if latest == nil {
		return RequestStatusView{State: RequestStateNone}, nil
	}

	view := RequestStatusView{Request: latest}
	switch latest.Status {
	case RequestStatusPending:
		view.State = RequestStatePending
	case RequestStatusApproved:
		view.State = RequestStateApproved
	case RequestStatusRejected:
		view.State = RequestStateRejected
	default:
		view.State = RequestStateNone
	}
	return view, nil
}

// Reconcile grants the artist role to subjects whose request was approved
// but who hold no artist-or-higher assignment. It returns how many subjects
// were repaired. Grants are recorded with SystemActor.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.store.UngrantedApprovals(ctx)
	if err != nil {
		return 0, dependencyError(err, "find ungranted approvals")
	}

	repaired := 0
	for i := range pending {
		req := &pending[i]
		var granted bool
		err := s.transaction(ctx, "reconcile_grant", func(ctx context.Context, tx Store) error {
			var err error
			granted, err = s.grantArtist(ctx, tx, req, SystemActor, AuditActionRepaired, AuditContext{})
			return err
		})
		if err != nil {
			return repaired, dependencyError(err, "repair artist grant")
		}
		if granted {
			repaired++
			s.metrics.roleGranted(RoleArtist, "reconcile")
			s.logger.WithFields(log.Fields{
				"subject_id": req.SubjectID,
				"request_id": req.ID,
			}).Warn("granted missing artist role for approved request")
		}
	}
	return repaired, nil
}
