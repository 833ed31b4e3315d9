package scraper

import (
	"errors"
	"fmt"
)

// Sentinel errors for scrape operations.
var (
	ErrSchemeNotAllowed = errors.New("scraper: url scheme not allowed")
	ErrNotFound         = errors.New("scraper: page not found")
	ErrRateLimited      = errors.New("scraper: rate limited by upstream")
	ErrUpstream         = errors.New("scraper: upstream server error")
	ErrBodyTooLarge     = errors.New("scraper: response body exceeds size limit")
	ErrNoContent        = errors.New("scraper: no readable content found")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op  string // Operation: "fetch", "extract", "metadata"
	URL string
	Err error
}

func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("scraper %s [%s]: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("scraper %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context.
func wrapError(op, url string, err error) error {
	return &Error{
		Op:  op,
		URL: url,
		Err: err,
	}
}
