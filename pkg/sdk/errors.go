package kwscout

import "errors"

// Sentinel errors mapped from API error codes.
// Use errors.Is() to check.
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrRunNotComplete = errors.New("run not complete")
	ErrInvalidRequest = errors.New("invalid request")
	ErrRateLimited    = errors.New("rate limited")
	ErrProviderError  = errors.New("upstream provider error")
	ErrServerError    = errors.New("server error")
)

// APIError is the decoded error body of a non-2xx response. It wraps the
// matching sentinel, so errors.Is works against both.
type APIError struct {
	StatusCode int
	Code       string
	Message    string

	sentinel error
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

func sentinelForCode(code string, status int) error {
	switch code {
	case "run_not_found":
		return ErrRunNotFound
	case "run_not_complete":
		return ErrRunNotComplete
	case "bad_request", "validation_failed":
		return ErrInvalidRequest
	case "rate_limited":
		return ErrRateLimited
	case "generation_provider_error", "embedding_provider_error":
		return ErrProviderError
	}
	if status >= 500 {
		return ErrServerError
	}
	return ErrInvalidRequest
}
