package login

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"deptportal/portal/internal/cache"
	"deptportal/portal/internal/client"
	"deptportal/portal/internal/guard"
	"deptportal/portal/internal/logging"
	"deptportal/portal/internal/model"
)

type Form struct {
	LoginID  string `validate:"required"`
	Password string `validate:"required"`
}

type Authenticator interface {
	Login(ctx context.Context, loginID, password string) (model.User, error)
	Logout(ctx context.Context)
}

type SessionWriter interface {
	SetUser(user model.User)
	Clear()
}

type Result struct {
	User     model.User
	Redirect string
}

type Flow struct {
	auth     Authenticator
	store    SessionWriter
	cache    cache.UserCache
	validate *validator.Validate
	logger   *zap.Logger
}

// NewFlow wires a login flow. userCache may be nil.
func NewFlow(auth Authenticator, store SessionWriter, userCache cache.UserCache, logger *zap.Logger) *Flow {
	return &Flow{
		auth:     auth,
		store:    store,
		cache:    userCache,
		validate: validator.New(),
		logger:   logging.OrNop(logger),
	}
}

// Submit validates the form, logs in and records the returned user. On
// failure the session is left as it was and the error is a *client.LoginError
// whose Message is meant for the user.
func (f *Flow) Submit(ctx context.Context, form Form) (Result, error) {
	form.LoginID = strings.TrimSpace(form.LoginID)
	form.Password = strings.TrimSpace(form.Password)
	if err := f.validate.Struct(form); err != nil {
		return Result{}, &client.LoginError{Message: client.MsgCredentialsRequired, Err: err}
	}

	user, err := f.auth.Login(ctx, form.LoginID, form.Password)
	if err != nil {
		var loginErr *client.LoginError
		if !errors.As(err, &loginErr) {
			loginErr = &client.LoginError{Message: client.MsgUnreachable, Err: err}
		}
		f.logger.Info("login rejected", zap.String("login_id", form.LoginID), zap.String("reason", loginErr.Message))
		return Result{}, loginErr
	}

	f.store.SetUser(user)
	if f.cache != nil {
		if err := f.cache.Save(ctx, user); err != nil {
			f.logger.Warn("could not mirror current user", zap.Error(err))
		}
	}
	f.logger.Info("login succeeded", zap.String("login_id", user.Profile().LoginID), zap.String("role", string(user.Role())))
	return Result{User: user, Redirect: guard.HomeFor(user.Role())}, nil
}

// Logout tells the backend, then clears local state whatever the backend
// said. It returns where to send the visitor.
func (f *Flow) Logout(ctx context.Context) string {
	f.auth.Logout(ctx)
	f.store.Clear()
	if f.cache != nil {
		if err := f.cache.Clear(ctx); err != nil {
			f.logger.Warn("could not clear mirrored user", zap.Error(err))
		}
	}
	return guard.PathLanding
}

var hintPrefixes = map[string]model.Role{
	"65": model.RoleAdmin,
	"70": model.RoleTeacher,
	"83": model.RoleStudent,
}

// RoleHint guesses a role from the login-id prefix for display next to the
// input. It must never be used for access decisions.
func RoleHint(loginID string) (model.Role, bool) {
	loginID = strings.TrimSpace(loginID)
	if len(loginID) < 2 {
		return "", false
	}
	role, ok := hintPrefixes[loginID[:2]]
	return role, ok
}
