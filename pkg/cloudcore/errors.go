package cloudcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error categories. Every error returned by the core wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrAuthentication    = errors.New("authentication failed")
	ErrUserAuthorization = errors.New("user is not authorized for the requested service or region")
	ErrNoDefaultRegion   = errors.New("no region was specified and no default region is available")
	ErrTransport         = errors.New("transport failure")
	ErrResourceState     = errors.New("resource entered an error state")
	ErrTimeout           = errors.New("timed out")
	ErrCanceled          = errors.New("canceled")
	ErrNotFound          = errors.New("not found")
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired           = errors.New("config is required")
	ErrIdentityEndpointRequired = errors.New("identity endpoint is required")
	ErrNoToken                  = fmt.Errorf("%w: identity service returned no token or service catalog", ErrAuthentication)
	ErrNotAuthenticated         = fmt.Errorf("%w: no credential configured", ErrValidation)
)

// APIError is returned when a response status was not acceptable.
type APIError struct {
	StatusCode int    `json:"status_code" yaml:"status_code"`
	Method     string `json:"method"      yaml:"method"`
	URL        string `json:"url"         yaml:"url"`
	Message    string `json:"message"     yaml:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	if e.Message != "" {
		msg += ": " + e.Message
	}

	return msg
}

// Unwrap maps the status code onto the error taxonomy.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusForbidden:
		return ErrUserAuthorization
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrValidation
	default:
		return nil
	}
}

// EndpointError reports why no endpoint could be selected.
type EndpointError struct {
	ServiceType string
	ServiceName string
	Region      string
	cause       error
}

// NewEndpointError creates an EndpointError. A cause of ErrNoDefaultRegion
// with a non-empty region means the service exists but not in that region and
// has no region-independent endpoint; such an error also matches
// ErrUserAuthorization.
func NewEndpointError(serviceType, serviceName, region string, cause error) *EndpointError {
	return &EndpointError{
		ServiceType: serviceType,
		ServiceName: serviceName,
		Region:      region,
		cause:       cause,
	}
}

// Error implements the error interface.
func (e *EndpointError) Error() string {
	target := e.ServiceType
	if e.ServiceName != "" {
		target = fmt.Sprintf("%s (%s)", e.ServiceType, e.ServiceName)
	}

	if e.Region != "" {
		return fmt.Sprintf("service %s in region %s: %v", target, e.Region, e.cause)
	}

	return fmt.Sprintf("service %s: %v", target, e.cause)
}

// Unwrap returns the categories this error belongs to.
func (e *EndpointError) Unwrap() []error {
	if errors.Is(e.cause, ErrNoDefaultRegion) && e.Region != "" {
		return []error{e.cause, ErrUserAuthorization}
	}

	return []error{e.cause}
}

// ResourceStateError is returned when a polled resource reports an
// unrecoverable status.
type ResourceStateError struct {
	ResourceID string
	Status     string
}

// Error implements the error interface.
func (e *ResourceStateError) Error() string {
	return fmt.Sprintf("resource %s entered error state %q", e.ResourceID, e.Status)
}

// Unwrap implements errors.Unwrap.
func (e *ResourceStateError) Unwrap() error {
	return ErrResourceState
}

// TimeoutError is returned when a wait exhausts its time or attempt budget.
type TimeoutError struct {
	ResourceID   string
	TargetStatus string
	Elapsed      time.Duration
	Attempts     int
	LastStatus   string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("resource %s did not reach status %q after %s (%d attempts, last status %q)",
		e.ResourceID, e.TargetStatus, e.Elapsed.Round(time.Millisecond), e.Attempts, e.LastStatus)
}

// Unwrap implements errors.Unwrap.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if the error is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsTimeout checks if the error is a wait timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if the error was caused by caller cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}
