package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/sony/gobreaker"
)

// ErrTransportDisabled is returned by channels whose relay is not configured.
// Deliveries fail without retry.
var ErrTransportDisabled = fmt.Errorf("%w: transport not configured", domain.ErrInvalidTarget)

// ProviderError classifies relay call failures as transient/permanent.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsPermanent reports whether retrying err can never succeed: the target is
// invalid, gone or expired.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrInvalidTarget) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return !providerErr.Transient
	}
	return false
}

// IsTransient reports whether an error should be retried. Anything not known
// to be permanent is retried, except caller cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	return !IsPermanent(err)
}

// statusError classifies a non-2xx relay reply. Only gone/expired targets are
// permanent.
func statusError(statusCode int, body string) *ProviderError {
	perr := &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, body),
		Transient:  true,
	}
	if statusCode == http.StatusNotFound || statusCode == http.StatusGone {
		perr.Transient = false
		perr.Cause = domain.ErrInvalidTarget
	}
	return perr
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("relay returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
