package model

import (
	"errors"
	"time"
)

// CompanyCredential is one stored login for a company's application portal.
// The password is encrypted at rest; the plaintext only exists inside a
// session that matched the host.
type CompanyCredential struct {
	ID          string    `json:"id"`
	UserID      string    `json:"-"`
	CompanyHost string    `json:"company_host"`
	Username    string    `json:"username"`
	Password    string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpsertCredentialRequest is the API input
type UpsertCredentialRequest struct {
	CompanyHost string `json:"company_host" binding:"required"`
	Username    string `json:"username" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

var (
	// ErrCredentialNotFound is returned when no credential matches
	ErrCredentialNotFound = errors.New("credential not found")
)

// ErrorCode represents a credentials error code
type ErrorCode string

const (
	CodeCredentialNotFound ErrorCode = "CREDENTIAL_NOT_FOUND"
	CodeInternalError      ErrorCode = "INTERNAL_ERROR"
)

// GetErrorCode maps an error to its code
func GetErrorCode(err error) ErrorCode {
	if errors.Is(err, ErrCredentialNotFound) {
		return CodeCredentialNotFound
	}
	return CodeInternalError
}
