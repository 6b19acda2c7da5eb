package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrSourceNotConfigured is returned when no spreadsheet URL is configured.
// It is never retried and never masked by cached data.
var ErrSourceNotConfigured = errors.New("source not configured: SHEET_URL is empty")

// API key errors returned by the admin endpoint guard.
var (
	ErrMissingAPIKey = errors.New("missing api key")
	ErrInvalidAPIKey = errors.New("invalid api key")
)

// ErrNoSnapshot is returned by a SnapshotStore that holds nothing yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// FetchError is a transport failure while downloading the CSV: a network
// error, a timeout, or a non-success upstream status.
type FetchError struct {
	Attempt    Attempt
	StatusCode int // upstream HTTP status, 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s attempt: upstream status %d: %v", e.Attempt, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s attempt: %v", e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the attempt was aborted by its deadline.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// IsTransportFailure reports whether err is a FetchError.
func IsTransportFailure(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
