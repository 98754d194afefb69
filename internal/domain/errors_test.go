package domain

import (
	"errors"
	"testing"
)

func TestFetchError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("transient error", func(t *testing.T) {
		err := NewTransientError("tickers", 0, baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "transient fetch tickers: connection refused" {
			t.Errorf("Error message = %q", err.Error())
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("status code in message", func(t *testing.T) {
		err := NewTransientError("globals", 503, errors.New("Service Unavailable"))
		want := "transient fetch globals (status 503): Service Unavailable"
		if err.Error() != want {
			t.Errorf("Error message = %q, want %q", err.Error(), want)
		}
	})

	t.Run("malformed error", func(t *testing.T) {
		err := NewMalformedError("orderbook:BTC-USDT", baseErr)

		if err.IsRetriable() {
			t.Error("Expected malformed error to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		wrapped := fmtWrap(NewTransientError("news", 0, baseErr))
		malformed := NewMalformedError("news", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(wrapped) {
			t.Error("IsRetriable should see through wrapping")
		}
		if IsRetriable(malformed) {
			t.Error("IsRetriable should return false for malformed error")
		}
		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func fmtWrap(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ err error }

func (w *wrapErr) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapErr) Unwrap() error { return w.err }

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "gateway.base_url", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [gateway.base_url]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestInvariantViolation(t *testing.T) {
	var err error = &InvariantViolation{Rule: "X", Detail: "y"}
	var iv *InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatal("errors.As should match InvariantViolation")
	}
	if iv.Rule != "X" {
		t.Errorf("Rule = %q", iv.Rule)
	}
}
