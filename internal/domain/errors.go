package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ConnectionError is a failure to open or keep the exchange connection.
// There is no reconnect logic, so it is never retriable.
type ConnectionError struct {
	Op  string // "dial", "read", "write"
	URI string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URI == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.URI + ": " + e.Err.Error()
}

func (e *ConnectionError) IsRetriable() bool {
	return false
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// MalformedMessageError marks an inbound frame that could not be classified or decoded.
type MalformedMessageError struct {
	Name   string // message name, empty if the envelope itself failed
	Reason error
}

func (e *MalformedMessageError) Error() string {
	if e.Name == "" {
		return "malformed message: " + e.Reason.Error()
	}
	return fmt.Sprintf("malformed message %q: %v", e.Name, e.Reason)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Reason
}

// DownstreamSendError is a failed write to one local subscriber.
type DownstreamSendError struct {
	Subscriber string
	Err        error
}

func (e *DownstreamSendError) Error() string {
	return "send to subscriber " + e.Subscriber + ": " + e.Err.Error()
}

func (e *DownstreamSendError) Unwrap() error {
	return e.Err
}

// PersistenceError is a storage failure. The sink stops on it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrAuthenticationFailed is returned when the exchange rejects or never confirms the login.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrNotAuthenticated is returned for requests that need a logged-in session.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrNotSubscribed is returned when unsubscribing from a stream that was never subscribed.
	ErrNotSubscribed = errors.New("not subscribed")

	// ErrSessionClosed is returned by reads and writes after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrQueueAbandoned is returned when putting to a queue whose consumer has stopped.
	ErrQueueAbandoned = errors.New("queue abandoned")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
