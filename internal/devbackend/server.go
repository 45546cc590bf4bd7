package devbackend

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deptportal/portal/internal/config"
	"deptportal/portal/internal/csrf"
	"deptportal/portal/internal/logging"
)

const (
	AccessCookieName  = "access_token_cookie"
	RefreshCookieName = "refresh_token_cookie"
)

type Server struct {
	cfg       config.Config
	directory *Directory
	blocklist Blocklist
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Server)

// WithClock replaces time.Now for token issuance and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logging.OrNop(logger)
	}
}

func NewServer(cfg config.Config, directory *Directory, blocklist Blocklist, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		directory: directory,
		blocklist: blocklist,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blocklist == nil {
		s.blocklist = NewMemoryBlocklist(s.now)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleGetMe)

	return r
}

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = loginRequest{}
	}
	if req.LoginID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "login_id and password are required")
		return
	}

	account, ok := s.directory.Verify(req.LoginID, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid login_id or password")
		return
	}

	role := roleFromLogin(account.LoginID)
	if err := s.issueTokens(w, account.LoginID, role); err != nil {
		s.logger.Error("issue tokens", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.logger.Info("login", zap.String("login_id", account.LoginID), zap.String("role", role))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Login successful",
		"user": map[string]interface{}{
			"login_id": account.LoginID,
			"name":     account.Name,
			"email":    account.Email,
			"role":     role,
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireRefresh(w, r)
	if !ok {
		return
	}
	if err := s.blocklist.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("revoke refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := s.issueTokens(w, claims.LoginID, roleFromLogin(claims.LoginID)); err != nil {
		s.logger.Error("issue tokens", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireRefresh(w, r)
	if !ok {
		return
	}
	if err := s.blocklist.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error("revoke refresh token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	for _, name := range []string{AccessCookieName, RefreshCookieName, csrf.AccessCookieName, csrf.RefreshCookieName} {
		s.unsetCookie(w, name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(w, r, AccessCookieName, tokenTypeAccess)
	if !ok {
		return
	}
	account, found := s.directory.Lookup(claims.LoginID)
	if !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": safeUser(account)})
}

// requireRefresh validates the refresh cookie and the double-submit header.
func (s *Server) requireRefresh(w http.ResponseWriter, r *http.Request) (*Claims, bool) {
	claims, ok := s.authenticate(w, r, RefreshCookieName, tokenTypeRefresh)
	if !ok {
		return nil, false
	}
	header := r.Header.Get(csrf.HeaderName)
	if header == "" {
		writeError(w, http.StatusUnauthorized, "Missing CSRF token")
		return nil, false
	}
	if header != claims.CSRF {
		writeError(w, http.StatusUnauthorized, "CSRF double submit tokens do not match")
		return nil, false
	}
	return claims, true
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, cookieName, tokenType string) (*Claims, bool) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		writeError(w, http.StatusUnauthorized, "Missing cookie \""+cookieName+"\"")
		return nil, false
	}
	claims, err := parseToken(s.cfg.JWTSecret, s.now, cookie.Value, tokenType)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return nil, false
	}
	revoked, err := s.blocklist.Revoked(r.Context(), claims.ID)
	if err != nil {
		s.logger.Error("blocklist lookup", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error")
		return nil, false
	}
	if revoked {
		writeError(w, http.StatusUnauthorized, "Token has been revoked")
		return nil, false
	}
	return claims, true
}

func (s *Server) issueTokens(w http.ResponseWriter, loginID, role string) error {
	now := s.now()
	access, accessClaims, err := newToken(s.cfg.JWTSecret, now, s.cfg.AccessTokenTTL, loginID, role, tokenTypeAccess)
	if err != nil {
		return err
	}
	refresh, refreshClaims, err := newToken(s.cfg.JWTSecret, now, s.cfg.RefreshTokenTTL, loginID, role, tokenTypeRefresh)
	if err != nil {
		return err
	}
	s.setCookie(w, AccessCookieName, access, true)
	s.setCookie(w, csrf.AccessCookieName, accessClaims.CSRF, false)
	s.setCookie(w, RefreshCookieName, refresh, true)
	s.setCookie(w, csrf.RefreshCookieName, refreshClaims.CSRF, false)
	return nil
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) unsetCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
