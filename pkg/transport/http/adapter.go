package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/auth"
	"github.com/rhuss/exammaker/pkg/observability"
	"github.com/rhuss/exammaker/pkg/registration"
	"github.com/rhuss/exammaker/pkg/session"
	"github.com/rhuss/exammaker/pkg/transport"
)

// Registrar runs the registration flows.
type Registrar interface {
	CreateOrganization(ctx context.Context, req registration.CreateOrganizationRequest) error
	AcceptInvite(ctx context.Context, req registration.AcceptInviteRequest) error
	CreateInvite(ctx context.Context, membershipID int64, ttl time.Duration) (*api.InviteToken, error)
}

// Sessions issues, rotates and revokes member sessions.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*session.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*session.TokenPair, error)
	Logout(ctx context.Context, membershipID int64) (int64, error)
	ActiveSessions(ctx context.Context, membershipID int64) (int, error)
}

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PublicEndpoints are served without authentication and are subject to
// the per-IP rate limit.
var PublicEndpoints = []string{
	"/register/organization",
	"/register/invite",
	"/session/login",
	"/session/refresh",
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize    int64
	MetricsEnabled bool
	MetricsPath    string
	ReadyTimeout   time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:    64 << 10,
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
		ReadyTimeout:   2 * time.Second,
	}
}

// Adapter serves the registration and session API over HTTP.
type Adapter struct {
	registrar Registrar
	sessions  Sessions
	config    Config
	logger    *slog.Logger
	authMW    transport.Middleware
	ipLimiter transport.KeyLimiter
	checks    map[string]HealthChecker
	mux       *http.ServeMux
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAuth installs the authentication middleware. Without it every
// member endpoint answers 401.
func WithAuth(mw transport.Middleware) AdapterOption {
	return func(a *Adapter) { a.authMW = mw }
}

// WithIPRateLimit limits the public endpoints per client IP.
func WithIPRateLimit(l transport.KeyLimiter) AdapterOption {
	return func(a *Adapter) { a.ipLimiter = l }
}

// WithHealthCheck adds a dependency to /readyz.
func WithHealthCheck(name string, c HealthChecker) AdapterOption {
	return func(a *Adapter) { a.checks[name] = c }
}

// WithAdapterLogger sets the logger for access logs and handler errors.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *Adapter) { a.logger = l }
}

// NewAdapter creates an HTTP adapter.
func NewAdapter(registrar Registrar, sessions Sessions, cfg Config, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		registrar: registrar,
		sessions:  sessions,
		config:    cfg,
		logger:    slog.Default(),
		checks:    make(map[string]HealthChecker),
		mux:       http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.config.MaxBodySize <= 0 {
		a.config.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if a.config.ReadyTimeout <= 0 {
		a.config.ReadyTimeout = DefaultConfig().ReadyTimeout
	}

	a.mux.HandleFunc("POST /register/organization", a.handleRegisterOrganization)
	a.mux.HandleFunc("POST /register/invite", a.handleRegisterInvite)
	a.mux.HandleFunc("POST /session/login", a.handleLogin)
	a.mux.HandleFunc("POST /session/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /session/logout", a.handleLogout)
	a.mux.HandleFunc("GET /session/me", a.handleMe)
	a.mux.HandleFunc("POST /invite/create", a.handleCreateInvite)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)
	if a.config.MetricsEnabled && a.config.MetricsPath != "" {
		a.mux.Handle("GET "+a.config.MetricsPath, promhttp.Handler())
	}
	return a
}

// Handler returns the http.Handler with the full middleware chain. The
// metrics middleware sits directly on the mux so it sees the matched
// route pattern.
func (a *Adapter) Handler() http.Handler {
	authMW := a.authMW
	if authMW == nil {
		authMW = denyMembers(a.config.BypassEndpoints())
	}
	return transport.Chain(
		transport.Recovery(a.logger),
		transport.RequestID(),
		transport.Logging(a.logger),
		transport.IPRateLimit(a.ipLimiter, PublicEndpoints),
		authMW,
		observability.MetricsMiddleware,
	)(a.mux)
}

// BypassEndpoints lists the paths the auth middleware must let through:
// auth.DefaultBypassEndpoints plus a non-default metrics path.
func (c Config) BypassEndpoints() []string {
	eps := append([]string{}, auth.DefaultBypassEndpoints...)
	if c.MetricsEnabled && c.MetricsPath != "" && !slices.Contains(eps, c.MetricsPath) {
		eps = append(eps, c.MetricsPath)
	}
	return eps
}

// denyMembers rejects everything outside the bypass list.
func denyMembers(bypass []string) transport.Middleware {
	open := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !open[r.URL.Path] {
				transport.WriteAPIError(w, api.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type createInviteRequest struct {
	TTL string `json:"ttl,omitempty"`
}

type createInviteResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	MembershipID      int64  `json:"membership_id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	OrganizationID    int64  `json:"organization_id"`
	OrganizationTitle string `json:"organization_title"`
	ActiveSessions    int    `json:"active_sessions"`
}

// handleRegisterOrganization handles POST /register/organization.
func (a *Adapter) handleRegisterOrganization(w http.ResponseWriter, r *http.Request) {
	var req registration.CreateOrganizationRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.registrar.CreateOrganization(r.Context(), req); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegisterInvite handles POST /register/invite.
func (a *Adapter) handleRegisterInvite(w http.ResponseWriter, r *http.Request) {
	var req registration.AcceptInviteRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.registrar.AcceptInvite(r.Context(), req); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLogin handles POST /session/login.
func (a *Adapter) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}
	pair, err := a.sessions.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, pair)
}

// handleRefresh handles POST /session/refresh.
func (a *Adapter) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}
	pair, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt,
	})
}

// handleLogout handles POST /session/logout.
func (a *Adapter) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if _, err := a.sessions.Logout(r.Context(), id.MembershipID); err != nil {
		transport.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /session/me.
func (a *Adapter) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	active, err := a.sessions.ActiveSessions(r.Context(), id.MembershipID)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, meResponse{
		MembershipID:      id.MembershipID,
		Email:             id.Email,
		Name:              id.Name,
		OrganizationID:    id.OrganizationID,
		OrganizationTitle: id.OrganizationTitle,
		ActiveSessions:    active,
	})
}

// handleCreateInvite handles POST /invite/create. An empty body or an
// omitted ttl selects the default lifetime.
func (a *Adapter) handleCreateInvite(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req createInviteRequest
	if r.ContentLength != 0 {
		if !a.decode(w, r, &req) {
			return
		}
	}
	var ttl time.Duration
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil {
			transport.WriteAPIError(w, api.NewValidationError("ttl", "ttl must be a duration such as 72h"))
			return
		}
		ttl = d
	}
	inv, err := a.registrar.CreateInvite(r.Context(), id.MembershipID, ttl)
	if err != nil {
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, createInviteResponse{Token: inv.Token, ExpiresAt: inv.ExpiresAt})
}

// handleHealthz handles GET /healthz.
func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz handles GET /readyz. Every registered dependency must
// answer within the ready timeout.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.config.ReadyTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(a.checks))
	for name, c := range a.checks {
		if err := c.HealthCheck(ctx); err != nil {
			a.logger.Warn("readiness check failed", "check", name, "error", err.Error())
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	transport.WriteJSON(w, status, body)
}

// decode enforces the content type and body limit and decodes the JSON
// body into dst. It writes the error response and returns false on
// failure.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return false
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return false
	}
	return true
}

// requireIdentity returns the authenticated identity or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		transport.WriteAPIError(w, api.NewUnauthorizedError())
		return nil, false
	}
	return id, true
}
