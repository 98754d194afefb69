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

// FetchErrorKind classifies a gateway failure.
type FetchErrorKind int

const (
	// KindTransient covers timeouts, 5xx and network failures.
	KindTransient FetchErrorKind = iota + 1
	// KindMalformed covers payloads that failed to decode or validate.
	KindMalformed
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// FetchError is the only error a gateway returns.
// Both kinds are handled the same way by callers: keep prior state.
type FetchError struct {
	Kind       FetchErrorKind
	Source     string // request key, e.g. "orderbook:BTC-USDT"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch %s (status %d): %v", e.Kind, e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch %s: %v", e.Kind, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetriable is true for transient failures only.
func (e *FetchError) IsRetriable() bool {
	return e.Kind == KindTransient
}

// NewTransientError creates a retriable fetch error.
func NewTransientError(source string, status int, err error) *FetchError {
	return &FetchError{Kind: KindTransient, Source: source, StatusCode: status, Err: err}
}

// NewMalformedError creates a fetch error for an unusable payload.
func NewMalformedError(source string, err error) *FetchError {
	return &FetchError{Kind: KindMalformed, Source: source, Err: err}
}

// ValidationError describes why a payload field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// InvariantViolation reports a broken state invariant. It is logged and the
// offending update is rejected; it is never allowed to crash a reader.
type InvariantViolation struct {
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation [" + e.Rule + "]: " + e.Detail
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
	// ErrNotRunning is returned by commands issued outside Loading/Live/Refreshing.
	ErrNotRunning = errors.New("engine not running")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("engine already started")

	// ErrInvalidPair is returned when a pair id is empty or malformed.
	ErrInvalidPair = errors.New("invalid pair")

	// ErrInvalidOrder is returned for non-positive price/quantity or an unknown side.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInsufficientBalance is returned when an order needs more than is available.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
