package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrUserNotFound indicates no account matches the requested identifier
	ErrUserNotFound = errors.New("user not found")

	// ErrUserIsProtected indicates the account exists but its data is private
	ErrUserIsProtected = errors.New("user is protected")

	// ErrServerOffline indicates the remote service is unreachable
	ErrServerOffline = errors.New("remote service is unreachable")

	// ErrAuthFailed indicates authentication failed
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrAPI indicates the remote service rejected a call
	ErrAPI = errors.New("remote service error")
)

// UserNotFoundError carries the identifier that failed to resolve
type UserNotFoundError struct {
	Identifier string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %s", e.Identifier)
}

func (e *UserNotFoundError) Is(target error) bool { return target == ErrUserNotFound }

// UserIsProtectedError carries the protected user
type UserIsProtectedError struct {
	User *User
}

func (e *UserIsProtectedError) Error() string {
	if e.User == nil {
		return ErrUserIsProtected.Error()
	}
	return fmt.Sprintf("user is protected: %s (%s)", e.User.DisplayName(), e.User.Key)
}

func (e *UserIsProtectedError) Is(target error) bool { return target == ErrUserIsProtected }

// APIError is a failure reported by the remote service in its response envelope
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }
