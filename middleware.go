package gallerykit

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID in and out of the API.
const RequestIDHeader = "X-Request-ID"

// Authenticator extracts the subject from a request. It returns "" with a nil
// error for anonymous requests.
type Authenticator func(*http.Request) (string, error)

// Middleware provides HTTP middleware for sessions and role gating.
type Middleware struct {
	service      *Service
	authenticate Authenticator
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance. Without an authenticator
// every request is anonymous.
//
// Example:
//
//	mw := gallerykit.NewMiddleware(service,
//	    gallerykit.WithAuthenticator(gallerykit.BearerTokenAuthenticator(secret)),
//	)
//	r.Use(mw.InjectAuditContext, mw.LoadSession)
func NewMiddleware(service *Service, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		service:      service,
		authenticate: func(*http.Request) (string, error) { return "", nil },
		errorHandler: WriteError,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithAuthenticator sets how the subject is extracted from requests.
func WithAuthenticator(fn Authenticator) MiddlewareOption {
	return func(m *Middleware) {
		m.authenticate = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

// BearerTokenAuthenticator verifies HS256 bearer tokens issued by the auth
// service and returns their subject claim. Requests without an Authorization
// header are anonymous.
func BearerTokenAuthenticator(secret []byte) Authenticator {
	return func(r *http.Request) (string, error) {
		header := r.Header.Get("Authorization")
		if header == "" {
			return "", nil
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return "", NewError(ErrUnauthorized, "malformed authorization header")
		}

		token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		})
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			return "", NewError(ErrUnauthorized, msg).WithCause(err)
		}

		claims, ok := token.Claims.(*jwt.RegisteredClaims)
		if !ok || !token.Valid || claims.Subject == "" {
			return "", NewError(ErrUnauthorized, "token has no subject")
		}
		return claims.Subject, nil
	}
}

// InjectAuditContext stores client IP, user agent and a correlation ID in the
// request context. The correlation ID is echoed in the response.
func (m *Middleware) InjectAuditContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithAuditContext(r.Context(), AuditContext{
			IPAddress: clientIP(r),
			UserAgent: r.UserAgent(),
			RequestID: requestID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoadSession authenticates the request and puts a Session in its context.
// Invalid credentials are rejected; missing credentials give an anonymous session.
func (m *Middleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subjectID, err := m.authenticate(r)
		if err != nil {
			m.errorHandler(w, r, &authError{err: err})
			return
		}
		ctx := r.Context()
		if subjectID != "" {
			ctx = WithSubjectID(ctx, subjectID)
		}
		ctx = WithSession(ctx, m.service.NewSession(subjectID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole creates middleware that requires at least role.
//
// Example:
//
//	r.With(mw.RequireRole(gallerykit.RoleAdmin)).Get("/v1/admin/audit-log", auditHandler)
func (m *Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := m.session(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !session.Can(r.Context(), role) {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "missing required role").
					WithActor(session.SubjectID()).
					WithRole(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature creates middleware that requires access to a registered feature.
//
// Example:
//
//	r.With(mw.RequireFeature(gallerykit.FeatureArtworksCreate)).Post("/v1/artworks", createHandler)
func (m *Middleware) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := m.session(r)
			if err != nil {
				m.errorHandler(w, r, err)
				return
			}
			if !session.Allows(r.Context(), feature) {
				m.errorHandler(w, r, NewError(ErrUnauthorized, "feature not available").
					WithActor(session.SubjectID()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated rejects anonymous requests.
func (m *Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.session(r); err != nil {
			m.errorHandler(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) session(r *http.Request) (*Session, error) {
	session := SessionFromContext(r.Context())
	if session == nil || session.IsAnonymous() {
		return nil, &authError{err: NewError(ErrUnauthorized, "authentication required")}
	}
	return session, nil
}

// authError marks failures to establish who the caller is, as opposed to a
// known caller lacking a role.
type authError struct {
	err error
}

func (e *authError) Error() string { return e.err.Error() }

func (e *authError) Unwrap() error { return e.err }

// StatusCode maps an error to the HTTP status the API answers with.
func StatusCode(err error) int {
	var ae *authError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ae):
		return http.StatusUnauthorized
	case IsValidation(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConsistency(err):
		return http.StatusConflict
	case IsDependency(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every error answer.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes err as a JSON error response. Internal errors are not
// echoed to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)
	msg := http.StatusText(status)
	var gErr *Error
	if status < http.StatusInternalServerError && errors.As(err, &gErr) && gErr.Message != "" {
		msg = gErr.Message
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     msg,
		RequestID: GetRequestID(r.Context()),
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
