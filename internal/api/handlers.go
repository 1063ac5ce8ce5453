package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/fernandezvara/gallerykit"
)

type handlers struct {
	service *gallerykit.Service
	health  gallerykit.HealthMonitor
	logger  log.FieldLogger
}

// RoleResponse is the body of GET /v1/me/role.
type RoleResponse struct {
	SubjectID string          `json:"subject_id,omitempty"`
	Role      gallerykit.Role `json:"role"`
	Features  []string        `json:"features"`
}

// ArtistRequestResponse is the JSON form of an artist request.
type ArtistRequestResponse struct {
	ID          string     `json:"id"`
	SubjectID   string     `json:"subject_id"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ReviewedBy  *string    `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Bio         string     `json:"bio,omitempty"`
}

// StatusResponse is the body of GET /v1/me/artist-request.
type StatusResponse struct {
	State     gallerykit.RequestState `json:"state"`
	CanSubmit bool                    `json:"can_submit"`
	Request   *ArtistRequestResponse  `json:"request,omitempty"`
}

type submitRequest struct {
	Message string `json:"message"`
}

func newArtistRequestResponse(req *gallerykit.ArtistRequest, profile *gallerykit.Profile) *ArtistRequestResponse {
	if req == nil {
		return nil
	}
	resp := &ArtistRequestResponse{
		ID:         req.ID,
		SubjectID:  req.SubjectID,
		Message:    req.Message,
		Status:     string(req.Status),
		CreatedAt:  req.CreatedAt,
		ReviewedBy: req.ReviewedBy,
		ReviewedAt: req.ReviewedAt,
	}
	if profile != nil {
		resp.DisplayName = profile.DisplayName
		resp.Bio = profile.Bio
	}
	return resp
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Warn("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// myRole reports the caller's effective role and the features it unlocks.
func (h *handlers) myRole(w http.ResponseWriter, r *http.Request) {
	session := gallerykit.SessionFromContext(r.Context())
	role, err := session.EffectiveRole(r.Context())
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RoleResponse{
		SubjectID: session.SubjectID(),
		Role:      role,
		Features:  h.service.Registry().AllowedFeatures(role),
	})
}

func (h *handlers) myArtistRequest(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), gallerykit.SessionFromContext(r.Context()))
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		State:     status.State,
		CanSubmit: status.CanSubmit(),
		Request:   newArtistRequestResponse(status.Request, nil),
	})
}

func (h *handlers) submitArtistRequest(w http.ResponseWriter, r *http.Request) {
	var input submitRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		gallerykit.WriteError(w, r, gallerykit.NewError(gallerykit.ErrValidation, "invalid JSON body"))
		return
	}

	req, err := h.service.Submit(r.Context(), gallerykit.SessionFromContext(r.Context()), input.Message)
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newArtistRequestResponse(req, nil))
}

func (h *handlers) listArtistRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view, err := gallerykit.ParseRequestView(q.Get("filter"))
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}

	filter := gallerykit.NewRequestFilter().WithView(view).WithPagination(limit, offset)
	views, err := h.service.ListRequests(r.Context(), gallerykit.SessionFromContext(r.Context()), filter)
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}

	out := make([]*ArtistRequestResponse, len(views))
	for i := range views {
		out[i] = newArtistRequestResponse(&views[i].ArtistRequest, views[i].Profile)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) resolveArtistRequest(decision gallerykit.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "requestID")
		req, err := h.service.Resolve(r.Context(), gallerykit.SessionFromContext(r.Context()), requestID, decision)
		if err != nil {
			gallerykit.WriteError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newArtistRequestResponse(req, nil))
	}
}

func (h *handlers) auditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	filter := gallerykit.NewAuditLogFilter().WithPagination(limit, offset)
	if v := q.Get("actor_id"); v != "" {
		filter = filter.WithActor(v)
	}
	if v := q.Get("subject_id"); v != "" {
		filter = filter.WithTargetSubject(v)
	}
	if v := q.Get("action"); v != "" {
		filter = filter.WithAction(gallerykit.AuditAction(v))
	}
	if v := q.Get("role"); v != "" {
		role, ok := gallerykit.ParseRole(v)
		if !ok {
			gallerykit.WriteError(w, r, gallerykit.NewError(gallerykit.ErrValidation, "invalid role"))
			return
		}
		filter = filter.WithRole(role)
	}
	since, err := parseTime(q.Get("since"), "since")
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	until, err := parseTime(q.Get("until"), "until")
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	filter = filter.WithTimeRange(since, until)

	logs, err := h.service.AuditLog(r.Context(), gallerykit.SessionFromContext(r.Context()), filter)
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	if logs == nil {
		logs = []gallerykit.RoleAuditLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *handlers) createArtwork(w http.ResponseWriter, r *http.Request) {
	var draft gallerykit.ArtworkDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		gallerykit.WriteError(w, r, gallerykit.NewError(gallerykit.ErrValidation, "invalid JSON body"))
		return
	}

	artwork, err := h.service.CreateArtwork(r.Context(), gallerykit.SessionFromContext(r.Context()), draft)
	if err != nil {
		gallerykit.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, artwork)
}

func pagination(limitStr, offsetStr string) (int, int, error) {
	limit, offset := 0, 0
	var err error
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			return 0, 0, gallerykit.NewError(gallerykit.ErrValidation, "invalid limit")
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, gallerykit.NewError(gallerykit.ErrValidation, "invalid offset")
		}
	}
	return limit, offset, nil
}

// parseTime reads an optional RFC3339 query value. Blank means unbounded.
func parseTime(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, gallerykit.NewError(gallerykit.ErrValidation, "invalid "+name)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
