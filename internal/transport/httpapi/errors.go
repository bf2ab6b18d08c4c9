package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marketlens/kwscout/internal/domain"
)

// API error codes.
const (
	codeBadRequest              = "bad_request"
	codeValidationFailed        = "validation_failed"
	codeRunNotFound             = "run_not_found"
	codeRunNotComplete          = "run_not_complete"
	codeRateLimited             = "rate_limited"
	codeGenerationProviderError = "generation_provider_error"
	codeEmbeddingProviderError  = "embedding_provider_error"
	codeIndexNotReady           = "index_not_ready"
	codeInternalError           = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrRunNotFound,
		domain.ErrEmptyPitch,
		domain.ErrRateLimited,
		domain.ErrSeedGeneration,
		domain.ErrGenerationProviderError,
		domain.ErrEmbeddingProviderError,
		domain.ErrNotInitialized,
		domain.ErrInitialization,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
