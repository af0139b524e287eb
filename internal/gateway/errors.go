package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TransientError is a failure worth retrying: rate limiting, server errors,
// network trouble.
type TransientError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient API error [%d]: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("transient API error: %s", msg)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is never retried: malformed requests, auth failures, payloads
// of an unexpected shape, or a transient failure that outlived its retries.
type FatalError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *FatalError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fatal API error [%d]: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("fatal API error: %s", msg)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err (or anything it wraps) is a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// classifyStatus maps an HTTP status to the error taxonomy.
func classifyStatus(code int, msg string, retryAfter time.Duration) error {
	if transientStatus(code) {
		return &TransientError{StatusCode: code, Message: msg, RetryAfter: retryAfter}
	}
	return &FatalError{StatusCode: code, Message: msg}
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past
// values yield zero.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
