package model

import (
	"errors"
	"time"
)

// SessionStatus is the durable state of one VNC session row
type SessionStatus string

const (
	StatusActive         SessionStatus = "active"
	StatusClosed         SessionStatus = "closed"
	StatusFailed         SessionStatus = "failed"
	StatusFailedRecovery SessionStatus = "failed_recovery"
)

// VNCSession is the durable row for one live session. Rows outlive the
// process so the fleet can recover after a restart.
type VNCSession struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	JobURL        string        `json:"job_url"`
	DisplayNum    int           `json:"display_num"`
	VNCPort       int           `json:"vnc_port"`
	WebSocketPort int           `json:"websocket_port"`
	Status        SessionStatus `json:"status"`
	AllocatedHost string        `json:"allocated_host"`
	SandboxHome   string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Allocation is one (display, vnc port, ws port, home) tuple. No two live
// sessions on a host ever share any member.
type Allocation struct {
	Index         int
	DisplayNum    int
	VNCPort       int
	WebSocketPort int
	SandboxHome   string
}

var (
	// ErrFleetFull is returned when every slot is allocated
	ErrFleetFull = errors.New("no free vnc session slots")
	// ErrSessionNotFound is returned for an unknown session id
	ErrSessionNotFound = errors.New("vnc session not found")
)

// ErrorCode represents a vnc error code
type ErrorCode string

const (
	CodeFleetFull       ErrorCode = "FLEET_FULL"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// GetErrorCode maps an error to its code
func GetErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrFleetFull):
		return CodeFleetFull
	case errors.Is(err, ErrSessionNotFound):
		return CodeSessionNotFound
	default:
		return CodeInternalError
	}
}
