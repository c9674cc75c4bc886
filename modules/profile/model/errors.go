package model

import "errors"

var (
	// ErrProfileNotFound is returned when the user has no stored profile
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNoResume is returned when the profile has no resume blob
	ErrNoResume = errors.New("profile has no resume")
)

// ErrorCode represents a profile error code
type ErrorCode string

const (
	CodeProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"
	CodeNoResume        ErrorCode = "NO_RESUME"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// GetErrorCode maps an error to its code
func GetErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return CodeProfileNotFound
	case errors.Is(err, ErrNoResume):
		return CodeNoResume
	default:
		return CodeInternalError
	}
}

// GetErrorMessage maps an error to a human-readable message
func GetErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return "Profile not found"
	case errors.Is(err, ErrNoResume):
		return "Profile has no resume uploaded"
	default:
		return "An internal error occurred"
	}
}
