package cloudcore

import (
	"net/http"
	"slices"

	"github.com/fivetwenty-io/cloudcore/internal/constants"
)

// StatusPolicy decides which response codes are acceptable. 2xx codes and the
// Accept list pass; 401 never passes because it drives the re-authentication
// path; everything else fails with an APIError.
type StatusPolicy struct {
	Accept []int
}

// DefaultStatusPolicy accepts 2xx only.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{}
}

// With returns a copy of the policy that also accepts codes.
func (p StatusPolicy) With(codes ...int) StatusPolicy {
	accept := make([]int, 0, len(p.Accept)+len(codes))
	accept = append(accept, p.Accept...)
	accept = append(accept, codes...)

	return StatusPolicy{Accept: accept}
}

// Acceptable reports whether code is acceptable under the policy.
func (p StatusPolicy) Acceptable(code int) bool {
	if code == http.StatusUnauthorized {
		return false
	}

	if code >= 200 && code < 300 {
		return true
	}

	return slices.Contains(p.Accept, code)
}

// Validate returns an *APIError when code is not acceptable.
func (p StatusPolicy) Validate(method, url string, code int, body []byte) error {
	if p.Acceptable(code) {
		return nil
	}

	return &APIError{
		StatusCode: code,
		Method:     method,
		URL:        url,
		Message:    excerpt(body),
	}
}

func excerpt(body []byte) string {
	if len(body) > constants.MaxErrorBodySize {
		return string(body[:constants.MaxErrorBodySize]) + "..."
	}

	return string(body)
}
