// Package capability defines the contract for the external services that
// perform concrete domain operations (booking, ordering, generation).
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Domain names one family of capability.
type Domain string

const (
	DomainRestaurant   Domain = "restaurant"
	DomainHotel        Domain = "hotel"
	DomainFlight       Domain = "flight"
	DomainRide         Domain = "ride"
	DomainTicketing    Domain = "ticketing"
	DomainFoodDelivery Domain = "food_delivery"
	DomainMenu         Domain = "menu"
	DomainBookings     Domain = "bookings"
	DomainImage        Domain = "image"
)

// Domains lists every known domain.
func Domains() []Domain {
	return []Domain{
		DomainRestaurant, DomainHotel, DomainFlight, DomainRide, DomainTicketing,
		DomainFoodDelivery, DomainMenu, DomainBookings, DomainImage,
	}
}

// Request is the normalized input handed to a Provider.
type Request struct {
	Domain  Domain            `json:"domain"`
	Fields  map[string]string `json:"fields"`
	RawText string            `json:"raw_text"`
}

// Field returns the named field, or "" when absent.
func (r Request) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// FieldOr returns the named field, or def when absent.
func (r Request) FieldOr(name, def string) string {
	if v := r.Field(name); v != "" {
		return v
	}
	return def
}

// Require returns the named field or a *RejectedError when it is empty.
func (r Request) Require(name string) (string, error) {
	v := strings.TrimSpace(r.Field(name))
	if v == "" {
		return "", Rejected("missing " + name)
	}
	return v, nil
}

// Provider is one external capability. Implementations return the provider's
// raw JSON payload; callers forward it without interpretation.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Invoke performs the operation. Failures are ErrUnavailable or *RejectedError.
	Invoke(ctx context.Context, req Request) (json.RawMessage, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (json.RawMessage, error)
}

// Name returns the provider identifier.
func (p ProviderFunc) Name() string { return p.ID }

// Invoke calls the wrapped function.
func (p ProviderFunc) Invoke(ctx context.Context, req Request) (json.RawMessage, error) {
	return p.Fn(ctx, req)
}

var (
	// ErrUnavailable marks network or provider outages.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRejected is matched by every *RejectedError.
	ErrRejected = errors.New("provider rejected request")
)

// Unavailable returns an error wrapping ErrUnavailable with the given reason.
func Unavailable(reason string) error {
	return fmt.Errorf("%w: %s", ErrUnavailable, reason)
}

// RejectedError is returned when a provider refuses a well-formed request.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRejected, e.Reason)
}

// Is makes errors.Is(err, ErrRejected) succeed.
func (e *RejectedError) Is(target error) bool { return target == ErrRejected }

// Rejected returns a *RejectedError.
func Rejected(reason string) error {
	return &RejectedError{Reason: reason}
}

// Describe renders a provider error for a task's error message.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrRejected) {
		msg = fmt.Sprintf("%s: %s", ErrUnavailable, msg)
	}
	return strings.TrimSpace(msg)
}
