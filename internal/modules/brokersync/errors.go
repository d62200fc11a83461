package brokersync

import (
	"context"
	"errors"
	"fmt"
)

// ErrBusy is returned when a trigger arrives while an attempt is running
var ErrBusy = errors.New("a sync is already in progress")

// ConfigError means the attempt was refused before any network call
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync not configured: %s: %v", e.Reason, e.Err)
	}
	return "sync not configured: " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError means the broker rejected the credentials.
// Network failures during login are FetchErrors.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("broker login failed: %v", e.Err) }

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means a broker call failed for a reason other than rejected
// credentials, including timeouts
type FetchError struct {
	Stage string // "login", "holdings", "orders" or "instruments"
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch hit its deadline
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// PersistenceError means the commit failed and nothing was written
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("failed to commit sync: %v", e.Err) }

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrorKind classifies an attempt error for logs, events and metrics
func ErrorKind(err error) string {
	var (
		configErr  *ConfigError
		authErr    *AuthError
		fetchErr   *FetchError
		persistErr *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &fetchErr):
		if fetchErr.Timeout() {
			return "timeout"
		}
		return "fetch"
	case errors.As(err, &persistErr):
		return "persistence"
	default:
		return "unknown"
	}
}
