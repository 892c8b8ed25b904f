package session

import (
	"errors"
	"fmt"

	"github.com/desertthunder/vqa/internal/services"
	"github.com/desertthunder/vqa/internal/shared"
)

// DefaultProfileUpdateMessage is shown when the server rejects an update without a message.
const DefaultProfileUpdateMessage = "Failed to update profile"

// AuthError is a login rejected by the server or a malformed token response.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%v: %s", shared.ErrAuthFailed, e.Message)
}

func (e *AuthError) Unwrap() []error {
	return []error{shared.ErrAuthFailed, e.Err}
}

// ProfileUpdateError is a rejected profile update. Message is safe to show to the user.
type ProfileUpdateError struct {
	Message string
	Err     error
}

func (e *ProfileUpdateError) Error() string {
	return e.Message
}

func (e *ProfileUpdateError) Unwrap() []error {
	return []error{shared.ErrProfileUpdateFailed, e.Err}
}

func newAuthError(err error) *AuthError {
	var apiErr *services.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return &AuthError{Message: apiErr.Detail, Err: err}
	case errors.As(err, &apiErr):
		return &AuthError{Message: fmt.Sprintf("server returned status %d", apiErr.StatusCode), Err: err}
	default:
		return &AuthError{Message: "invalid token response", Err: err}
	}
}

func newProfileUpdateError(err error) *ProfileUpdateError {
	var apiErr *services.APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return &ProfileUpdateError{Message: apiErr.Detail, Err: err}
	}
	return &ProfileUpdateError{Message: DefaultProfileUpdateMessage, Err: err}
}
