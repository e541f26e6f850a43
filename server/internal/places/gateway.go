// Package places resolves place references into place details.
//
// A Gateway performs exactly one provider call per Resolve. It never retries
// and never touches selection or history state; what to do with a result is
// the coordinator's decision.
package places

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"place-explorer/server/internal/model"
)

// ErrNotFound means the reference resolved to nothing.
var ErrNotFound = errors.New("place not found")

// Gateway resolves a reference into details restricted to fields.
type Gateway interface {
	Resolve(ctx context.Context, ref model.PlaceReference, fields model.FieldSet) (model.PlaceDetails, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, ref model.PlaceReference, fields model.FieldSet) (model.PlaceDetails, error)

func (f GatewayFunc) Resolve(ctx context.Context, ref model.PlaceReference, fields model.FieldSet) (model.PlaceDetails, error) {
	return f(ctx, ref, fields)
}

// ProviderError is a network or provider-side failure.
type ProviderError struct {
	// Status is the provider status string, or the HTTP status when the
	// provider never answered with a body.
	Status  string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider error (status %s)", e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsProviderError reports whether err is, or wraps, a *ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// FailureReason classifies a Resolve error for metrics and for the
// transient failure indicator.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsNotFound(err):
		return "not_found"
	default:
		return "provider_error"
	}
}
