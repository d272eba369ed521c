package mapform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors returned by the SDK.
var (
	// ErrNoSession is returned when a session call is made before Start.
	ErrNoSession = errors.New("mapform: no session started")

	// ErrSessionInvalid is returned when the session token is invalid or expired.
	ErrSessionInvalid = errors.New("mapform: session is invalid or expired")
)

// APIError represents an error response from the form API.
type APIError struct {
	StatusCode int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mapform: API error %d [%s]: %s", e.StatusCode, e.Code, e.Message)
}

// MissingFields returns the labels of the fields a rejected submission lacks
func (e *APIError) MissingFields() []string {
	raw, _ := e.Details["fields"].([]interface{})
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			labels = append(labels, s)
		}
	}
	return labels
}

// IsTooSoon reports whether a submission was refused by the anti-spam window
func (e *APIError) IsTooSoon() bool {
	return e.StatusCode == http.StatusTooManyRequests && e.Code == "too_soon"
}

// apiErrorWrapper matches the API error envelope.
type apiErrorWrapper struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var wrapper apiErrorWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Code != "" {
		if statusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrSessionInvalid, wrapper.Error.Message)
		}
		return &APIError{
			StatusCode: statusCode,
			Code:       wrapper.Error.Code,
			Message:    wrapper.Error.Message,
			Details:    wrapper.Error.Details,
		}
	}

	return &APIError{
		StatusCode: statusCode,
		Code:       "unknown",
		Message:    string(body),
	}
}

// IsAPIError checks whether err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
