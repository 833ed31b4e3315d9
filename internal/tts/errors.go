package tts

import (
	"errors"
	"fmt"
)

// Sentinel errors for speech vendor operations.
var (
	ErrNotFound    = errors.New("tts: job not found")
	ErrRateLimited = errors.New("tts: rate limited by vendor")
	ErrBadRequest  = errors.New("tts: bad request")
	ErrVendor      = errors.New("tts: vendor error")
	ErrCacheMiss   = errors.New("tts: cache miss")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op    string // Operation: "createJob", "getJob", "deleteJob", "voices", "segment"
	JobID string // If applicable
	Err   error
}

func (e *Error) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("tts %s [%s]: %v", e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("tts %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context.
func wrapError(op, jobID string, err error) error {
	return &Error{
		Op:    op,
		JobID: jobID,
		Err:   err,
	}
}
