// Package httpapi implements the public HTTP surface: session
// create/lookup, the ICE server list, the authenticated principal's
// identity, and the admin allow-list CRUD. Handlers are thin adapters
// over the registry, allow-list, rate limiter, and auth kernel,
// translating domain sentinel errors into HTTP status codes.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/johnkord/sendie/internal/allowlist"
	"github.com/johnkord/sendie/internal/auth"
	"github.com/johnkord/sendie/internal/config"
	"github.com/johnkord/sendie/internal/ratelimit"
	"github.com/johnkord/sendie/internal/registry"
)

// sessionIDPattern matches the session ID shape: 22 characters of
// unpadded base64url.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22}$`)

// discordIDPattern matches the upstream provider's identifier shape:
// 17 to 19 decimal digits.
var discordIDPattern = regexp.MustCompile(`^[0-9]{17,19}$`)

// Server holds every collaborator the HTTP surface routes against.
type Server struct {
	registry  *registry.Registry
	allowlist *allowlist.AllowList
	limiter   *ratelimit.Limiter
	kernel    *auth.Kernel
	logger    *slog.Logger

	iceServers      []config.IceServer
	maxPeersDefault int
}

// New creates a Server wired to its collaborators.
func New(
	logger *slog.Logger,
	reg *registry.Registry,
	allow *allowlist.AllowList,
	limiter *ratelimit.Limiter,
	kernel *auth.Kernel,
	iceServers []config.IceServer,
	maxPeersDefault int,
) *Server {
	return &Server{
		registry:        reg,
		allowlist:       allow,
		limiter:         limiter,
		kernel:          kernel,
		logger:          logger.With(slog.String("component", "httpapi")),
		iceServers:      iceServers,
		maxPeersDefault: maxPeersDefault,
	}
}

// Routes returns the complete HTTP handler for the public surface,
// wrapped with auth claim extraction, logging, and panic recovery.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("GET /sessions/{id}", s.getSession)
	mux.HandleFunc("GET /ice-servers", s.iceServersHandler)
	mux.HandleFunc("GET /auth/me", s.authMe)
	mux.HandleFunc("GET /admin/sessions", s.listAdminSessions)
	mux.HandleFunc("GET /admin/sessions/{id}", s.getAdminSession)
	mux.HandleFunc("GET /admin/users", s.listAdminUsers)
	mux.HandleFunc("POST /admin/users/{id}", s.addAdminUser)
	mux.HandleFunc("DELETE /admin/users/{id}", s.removeAdminUser)
	mux.HandleFunc("GET /healthz", s.healthz)

	return chain(mux, auth.Middleware, loggingMiddleware(s.logger), recoveryMiddleware(s.logger))
}

// -------------------------------------------------------------------------
// POST /sessions
// -------------------------------------------------------------------------

type createSessionRequest struct {
	MaxPeers int `json:"max_peers,omitempty"`
}

type sessionCreateResponse struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	MaxPeers          int       `json:"max_peers"`
}

// createSession requires the AllowedUser policy, enforces the
// SessionCreate rate-limit policy keyed on client IP, and returns the
// newly created session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAllowedUser(principal) {
		writeError(w, ErrForbidden)
		return
	}

	ip := clientIP(r)
	result, err := s.limiter.Check(ratelimit.SessionCreate, ip)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.Allowed {
		writeRateLimited(w, result)
		return
	}

	req := createSessionRequest{MaxPeers: s.maxPeersDefault}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}
	}
	if req.MaxPeers == 0 {
		req.MaxPeers = s.maxPeersDefault
	}

	snap, err := s.registry.Create(principal.UserID, req.MaxPeers)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionCreateResponse{
		ID:                snap.ID,
		CreatedAt:         snap.CreatedAt,
		ExpiresAt:         snap.ExpiresAt,
		AbsoluteExpiresAt: snap.AbsoluteExpiresAt,
		MaxPeers:          snap.MaxPeers,
	})
}

// -------------------------------------------------------------------------
// GET /sessions/{id}
// -------------------------------------------------------------------------

type sessionSummary struct {
	ID        string `json:"id"`
	PeerCount int    `json:"peer_count"`
	MaxPeers  int    `json:"max_peers"`
	IsLocked  bool   `json:"is_locked"`
}

// getSession is public and returns only the non-sensitive summary
// fields. A malformed ID is rejected with 404, matching the treatment of
// an ID that is merely unknown.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !sessionIDPattern.MatchString(id) {
		writeError(w, ErrInvalidSessionID)
		return
	}

	snap, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionSummary{
		ID:        snap.ID,
		PeerCount: snap.PeerCount,
		MaxPeers:  snap.MaxPeers,
		IsLocked:  snap.IsLocked,
	})
}

// -------------------------------------------------------------------------
// GET /ice-servers
// -------------------------------------------------------------------------

// iceServersHandler is public and returns the configured STUN/TURN list
// as opaque structured data.
func (s *Server) iceServersHandler(w http.ResponseWriter, _ *http.Request) {
	servers := s.iceServers
	if servers == nil {
		servers = []config.IceServer{}
	}
	writeJSON(w, http.StatusOK, struct {
		IceServers []config.IceServer `json:"ice_servers"`
	}{IceServers: servers})
}

// -------------------------------------------------------------------------
// GET /auth/me
// -------------------------------------------------------------------------

type meResponse struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	IsAdmin     bool   `json:"is_admin"`
	IsAllowed   bool   `json:"is_allowed"`
}

// authMe returns the authenticated principal's user-ID and allow-list
// standing. DisplayName/AvatarRef are populated by the upstream identity
// module; they are left empty here since no such module is wired into
// this deployment.
func (s *Server) authMe(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())

	writeJSON(w, http.StatusOK, meResponse{
		UserID:    principal.UserID,
		IsAdmin:   s.kernel.IsAdmin(principal),
		IsAllowed: s.kernel.IsAllowedUser(principal),
	})
}

// -------------------------------------------------------------------------
// /admin/sessions
// -------------------------------------------------------------------------

type adminSessionView struct {
	ID                string     `json:"id"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	AbsoluteExpiresAt time.Time  `json:"absolute_expires_at"`
	EmptySince        *time.Time `json:"empty_since,omitempty"`
	MaxPeers          int        `json:"max_peers"`
	PeerCount         int        `json:"peer_count"`
	ConnectedPairs    int        `json:"connected_pairs"`
	CreatorUserID     string     `json:"creator_user_id"`
	HostConnected     bool       `json:"host_connected"`
	IsLocked          bool       `json:"is_locked"`
	IsHostOnlySending bool       `json:"is_host_only_sending"`
}

func adminSessionViewFromSnapshot(snap registry.Snapshot) adminSessionView {
	return adminSessionView{
		ID:                snap.ID,
		CreatedAt:         snap.CreatedAt,
		ExpiresAt:         snap.ExpiresAt,
		AbsoluteExpiresAt: snap.AbsoluteExpiresAt,
		EmptySince:        snap.EmptySince,
		MaxPeers:          snap.MaxPeers,
		PeerCount:         snap.PeerCount,
		ConnectedPairs:    snap.ConnectedPairs,
		CreatorUserID:     snap.CreatorUserID,
		HostConnected:     snap.HostConnected,
		IsLocked:          snap.IsLocked,
		IsHostOnlySending: snap.IsHostOnlySending,
	}
}

// listAdminSessions returns every live session with full operator detail,
// gated on the Admin policy (unlike the public GET /sessions/{id} summary).
func (s *Server) listAdminSessions(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAdmin(principal) {
		writeError(w, ErrForbidden)
		return
	}

	snaps := s.registry.List()
	views := make([]adminSessionView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, adminSessionViewFromSnapshot(snap))
	}

	writeJSON(w, http.StatusOK, struct {
		Sessions []adminSessionView `json:"sessions"`
	}{Sessions: views})
}

// getAdminSession returns full operator detail for a single session,
// gated on the Admin policy.
func (s *Server) getAdminSession(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAdmin(principal) {
		writeError(w, ErrForbidden)
		return
	}

	id := r.PathValue("id")
	if !sessionIDPattern.MatchString(id) {
		writeError(w, ErrInvalidSessionID)
		return
	}

	snap, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, adminSessionViewFromSnapshot(snap))
}

// -------------------------------------------------------------------------
// /admin/users
// -------------------------------------------------------------------------

// listAdminUsers returns every allow-listed user, admins included,
// gated on the Admin policy.
func (s *Server) listAdminUsers(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAdmin(principal) {
		writeError(w, ErrForbidden)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Users []allowlist.AllowedUser `json:"users"`
	}{Users: s.allowlist.ListUsers()})
}

// addAdminUser validates the target ID against the upstream provider's
// identifier shape before adding it to the allow-list.
func (s *Server) addAdminUser(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAdmin(principal) {
		writeError(w, ErrForbidden)
		return
	}

	targetID := r.PathValue("id")
	if !discordIDPattern.MatchString(targetID) {
		writeError(w, ErrInvalidUserID)
		return
	}

	ok := s.allowlist.Add(targetID, principal.UserID)
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: ok})
}

// removeAdminUser revokes the target ID's allow-list membership. The
// allow-list itself refuses to remove admins; this handler surfaces that
// refusal as success=false rather than an error, since it is a
// well-formed, policy-satisfying request that simply did not apply.
func (s *Server) removeAdminUser(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if !s.kernel.IsAdmin(principal) {
		writeError(w, ErrForbidden)
		return
	}

	targetID := r.PathValue("id")
	ok := s.allowlist.Remove(targetID, principal.UserID)
	writeJSON(w, http.StatusOK, struct {
		Success bool `json:"success"`
	}{Success: ok})
}

// -------------------------------------------------------------------------
// GET /healthz
// -------------------------------------------------------------------------

// healthz backs orchestrator liveness probes.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

// -------------------------------------------------------------------------
// Shared helpers
// -------------------------------------------------------------------------

// writeRateLimited writes the 429 response with retry-after metadata
// surfaced in both the body and a Retry-After header.
func writeRateLimited(w http.ResponseWriter, result ratelimit.Result) {
	retrySeconds := int(result.RetryAfter.Seconds())
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
	writeJSON(w, http.StatusTooManyRequests, struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retry_after_seconds"`
	}{Error: ErrRateLimited.Error(), RetryAfter: retrySeconds})
}

// clientIP extracts the caller's address for rate-limit keying. It uses
// the parsed host from RemoteAddr rather than any proxy header: the
// service has no configured trusted-proxy set, so forwarded headers are
// spoofable.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
