package shared

import "errors"

var (
	ErrNotImplemented = errors.New("not implemented")

	// Configuration errors
	ErrMissingConfig = errors.New("configuration not found")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Authentication errors
	ErrAuthFailed          = errors.New("authentication failed")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrForbidden           = errors.New("not authorized for this role")
	ErrTokenExpired        = errors.New("access token expired")
	ErrProfileUpdateFailed = errors.New("profile update failed")

	// API and service errors
	ErrAPIRequest         = errors.New("API request failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timed out")

	// Task tracking errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrPollTransient = errors.New("transient poll failure")
	ErrStorage       = errors.New("task storage unreadable")
	ErrLocked        = errors.New("another poller holds the task store")

	// Input validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)
