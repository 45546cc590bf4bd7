package client

import (
	"errors"
	"fmt"
	"net/http"
)

// UnauthenticatedError means the backend did not confirm a session. Status
// 401 is the only status that is worth a refresh attempt.
type UnauthenticatedError struct {
	Status int
	Err    error
}

func (e *UnauthenticatedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthenticated (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("unauthenticated (status %d)", e.Status)
}

func (e *UnauthenticatedError) Unwrap() error { return e.Err }

type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: network error: %v", e.Op, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

type RefreshFailedError struct {
	Status int
	Err    error
}

func (e *RefreshFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("refresh failed (status %d)", e.Status)
}

func (e *RefreshFailedError) Unwrap() error { return e.Err }

// LoginError carries the message shown on the login form.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

const (
	MsgCredentialsRequired = "Both login ID and password are required."
	MsgLoginFailed         = "Login failed. Please check your credentials."
	MsgRoleMissing         = "Login succeeded but role is missing in response."
	MsgRoleUnknown         = "Login succeeded but the role in the response is not recognised."
	MsgUnreachable         = "Unable to reach server. Check API URL or network."
)

// IsUnauthorized reports whether err is an UnauthenticatedError with status 401.
func IsUnauthorized(err error) bool {
	var unauth *UnauthenticatedError
	return errors.As(err, &unauth) && unauth.Status == http.StatusUnauthorized
}
