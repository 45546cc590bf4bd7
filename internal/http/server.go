package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deptportal/portal/internal/client"
	"deptportal/portal/internal/guard"
	"deptportal/portal/internal/logging"
	"deptportal/portal/internal/login"
	"deptportal/portal/internal/model"
	"deptportal/portal/internal/session"
)

const placeholderMessage = "Checking session..."

type SessionView interface {
	Snapshot() session.Snapshot
}

type LoginFlow interface {
	Submit(ctx context.Context, form login.Form) (login.Result, error)
	Logout(ctx context.Context) string
}

type Server struct {
	session  SessionView
	flow     LoginFlow
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// NewServer builds the portal shell. A nil gatherer serves the default
// prometheus registry.
func NewServer(view SessionView, flow LoginFlow, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		session:  view,
		flow:     flow,
		gatherer: gatherer,
		logger:   logging.OrNop(logger),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.Middleware(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/session", s.handleSession)

	r.Get("/", s.handleLanding)
	r.Get("/login", s.publicOnly(s.handleLoginForm))
	r.Post("/login", s.publicOnly(s.handleLoginSubmit))
	r.Post("/logout", s.handleLogout)

	r.Route(guard.PathStudent, func(r chi.Router) {
		r.Get("/*", s.protected(model.RoleStudent))
	})
	r.Route(guard.PathFaculty, func(r chi.Router) {
		r.Get("/*", s.protected(model.RoleTeacher))
	})
	r.Route(guard.PathAdmin, func(r chi.Router) {
		r.Get("/*", s.protected(model.RoleAdmin))
	})

	return r
}

type sessionResponse struct {
	Loading       bool            `json:"loading"`
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user"`
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	writeJSON(w, http.StatusOK, sessionResponse{
		Loading:       snap.Loading,
		Authenticated: snap.Authenticated(),
		User:          s.encodeUser(snap.User),
	})
}

type viewResponse struct {
	View     string          `json:"view"`
	User     json.RawMessage `json:"user,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	RoleHint string          `json:"role_hint,omitempty"`
}

func (s *Server) handleLanding(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	resp := viewResponse{View: "landing"}
	if snap.Authenticated() {
		resp.User = s.encodeUser(snap.User)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) protected(allowed ...model.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.session.Snapshot()
		decision := guard.Protected(snap, allowed...)
		if s.apply(w, r, decision) {
			return
		}
		writeJSON(w, http.StatusOK, viewResponse{
			View: strings.TrimSuffix(r.URL.Path, "/"),
			User: s.encodeUser(snap.User),
		})
	}
}

func (s *Server) publicOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apply(w, r, guard.PublicOnly(s.session.Snapshot())) {
			return
		}
		next(w, r)
	}
}

// apply handles placeholder and redirect decisions. It reports whether the
// response has been written.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, decision guard.Decision) bool {
	switch decision.Kind {
	case guard.Placeholder:
		writeJSON(w, http.StatusOK, viewResponse{View: "placeholder", Message: placeholderMessage})
		return true
	case guard.Redirect:
		http.Redirect(w, r, decision.Location, http.StatusFound)
		return true
	default:
		return false
	}
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	resp := viewResponse{View: "login"}
	if role, ok := login.RoleHint(r.URL.Query().Get("login_id")); ok {
		resp.RoleHint = string(role)
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

func (s *Server) handleLoginSubmit(w http.ResponseWriter, r *http.Request) {
	form, err := readLoginForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.flow.Submit(r.Context(), form)
	if err != nil {
		resp := viewResponse{View: "login", Error: client.MsgLoginFailed}
		var loginErr *client.LoginError
		if errors.As(err, &loginErr) {
			resp.Error = loginErr.Message
		}
		if role, ok := login.RoleHint(form.LoginID); ok {
			resp.RoleHint = string(role)
		}
		status := http.StatusUnauthorized
		switch resp.Error {
		case client.MsgCredentialsRequired:
			status = http.StatusBadRequest
		case client.MsgUnreachable:
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
		return
	}
	http.Redirect(w, r, result.Redirect, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.flow.Logout(r.Context()), http.StatusSeeOther)
}

func (s *Server) encodeUser(user model.User) json.RawMessage {
	raw, err := model.EncodeUser(user)
	if err != nil {
		s.logger.Warn("encode user", zap.Error(err))
		return json.RawMessage("null")
	}
	return raw
}

func readLoginForm(r *http.Request) (login.Form, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return login.Form{}, err
		}
		return login.Form{LoginID: req.LoginID, Password: req.Password}, nil
	}
	if err := r.ParseForm(); err != nil {
		return login.Form{}, err
	}
	return login.Form{LoginID: r.PostForm.Get("login_id"), Password: r.PostForm.Get("password")}, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
