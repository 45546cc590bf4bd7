package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"deptportal/portal/internal/config"
	"deptportal/portal/internal/csrf"
	"deptportal/portal/internal/logging"
	"deptportal/portal/internal/model"
)

const (
	PathMe      = "/auth/me"
	PathLogin   = "/auth/login"
	PathRefresh = "/auth/refresh"
	PathLogout  = "/auth/logout"

	tracerName   = "deptportal/portal/client"
	maxBodyBytes = 1 << 20
)

type TokenSource interface {
	RefreshToken() string
}

// Client talks to the backend auth endpoints. The http.Client should carry
// the cookie jar that holds the session cookies.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

func New(cfg config.Config, httpClient *http.Client, tokens TokenSource, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
		timeout: cfg.RequestTimeout,
		logger:  logging.OrNop(logger),
		tracer:  otel.Tracer(tracerName),
	}
}

type envelope struct {
	User  json.RawMessage `json:"user"`
	Error json.RawMessage `json:"error"`
}

type loginRequest struct {
	LoginID  string `json:"login_id"`
	Password string `json:"password"`
}

// ProbeIdentity asks the backend who owns the current session.
func (c *Client) ProbeIdentity(ctx context.Context) (model.User, error) {
	ctx, span := c.tracer.Start(ctx, "auth.probe_identity")
	defer span.End()

	status, body, err := c.do(ctx, http.MethodGet, PathMe, nil, "")
	if err != nil {
		recordError(span, err)
		return nil, &NetworkError{Op: "probe", Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if !success(status) {
		return nil, &UnauthenticatedError{Status: status}
	}

	user, err := decodeUser(body)
	if err != nil {
		c.logger.Warn("identity response without usable user", zap.Int("status", status), zap.Error(err))
		recordError(span, err)
		return nil, &UnauthenticatedError{Status: status, Err: err}
	}
	return user, nil
}

// Refresh exchanges the refresh cookie for a new credential pair.
func (c *Client) Refresh(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "auth.refresh")
	defer span.End()

	status, _, err := c.do(ctx, http.MethodPost, PathRefresh, nil, c.refreshToken())
	if err != nil {
		recordError(span, err)
		return &RefreshFailedError{Err: &NetworkError{Op: "refresh", Err: err}}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if !success(status) {
		return &RefreshFailedError{Status: status}
	}
	return nil
}

func (c *Client) Login(ctx context.Context, loginID, password string) (model.User, error) {
	ctx, span := c.tracer.Start(ctx, "auth.login")
	defer span.End()

	status, body, err := c.do(ctx, http.MethodPost, PathLogin, loginRequest{LoginID: loginID, Password: password}, "")
	if err != nil {
		recordError(span, err)
		c.logger.Error("login request failed", zap.Error(err))
		return nil, &LoginError{Message: MsgUnreachable, Err: &NetworkError{Op: "login", Err: err}}
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if !success(status) {
		message := MsgLoginFailed
		var env envelope
		if json.Unmarshal(body, &env) == nil {
			if text := errorText(env.Error); text != "" {
				message = text
			}
		}
		return nil, &LoginError{Message: message}
	}

	user, err := decodeUser(body)
	if err != nil {
		recordError(span, err)
		switch {
		case errors.Is(err, model.ErrUnknownRole):
			return nil, &LoginError{Message: MsgRoleUnknown, Err: err}
		case errors.Is(err, model.ErrRoleMissing), errors.Is(err, model.ErrUserMissing):
			return nil, &LoginError{Message: MsgRoleMissing, Err: err}
		default:
			return nil, &LoginError{Message: MsgLoginFailed, Err: err}
		}
	}
	return user, nil
}

// Logout never fails from the caller's point of view. Problems are logged.
func (c *Client) Logout(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "auth.logout")
	defer span.End()

	status, _, err := c.do(ctx, http.MethodPost, PathLogout, nil, c.refreshToken())
	if err != nil {
		recordError(span, err)
		c.logger.Warn("logout failed, client state is cleared anyway", zap.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if !success(status) {
		c.logger.Debug("logout rejected by backend", zap.Int("status", status))
	}
}

func (c *Client) refreshToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.RefreshToken()
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, csrfToken string) (int, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	csrf.SetHeader(req.Header, csrfToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	c.logger.Debug("auth request", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
	return resp.StatusCode, data, nil
}

func decodeUser(body []byte) (model.User, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if len(env.User) == 0 {
		return nil, model.ErrUserMissing
	}
	return model.DecodeUser(env.User)
}

func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func success(status int) bool {
	return status >= 200 && status < 300
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
