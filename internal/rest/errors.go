// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/authenticator"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/ceremony"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/token"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ErrorResponse is the structured error body returned by every failing
// endpoint.
type ErrorResponse struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

// writeError writes a structured error response to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Code:      errorCode(err),
		Message:   err.Error(),
		Status:    statusCode,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps domain errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, authenticator.ErrDeviceNotFound),
		errors.Is(err, authenticator.ErrAuthenticatorNotFound),
		errors.Is(err, authenticator.ErrCredentialNotFound),
		errors.Is(err, keys.ErrKeyNotFound),
		errors.Is(err, ceremony.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, authenticator.ErrDuplicateDevice),
		errors.Is(err, authenticator.ErrDuplicateCredential),
		errors.Is(err, authenticator.ErrDuplicateAuthenticator),
		errors.Is(err, authenticator.ErrConflict),
		errors.Is(err, keys.ErrDuplicateKey),
		errors.Is(err, ceremony.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, authenticator.ErrBadRequest),
		errors.Is(err, authenticator.ErrAlgorithmMismatch),
		errors.Is(err, authenticator.ErrCredentialMismatch),
		errors.Is(err, keys.ErrUnsupportedKeyType),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrTokenValidation),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// errorCode derives the machine-readable code for an error.
func errorCode(err error) string {
	switch {
	case errors.Is(err, authenticator.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, authenticator.ErrAuthenticatorNotFound):
		return "authenticator_not_found"
	case errors.Is(err, authenticator.ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, keys.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ceremony.ErrNotFound):
		return "request_not_found"
	case errors.Is(err, authenticator.ErrDuplicateDevice),
		errors.Is(err, authenticator.ErrDuplicateCredential),
		errors.Is(err, authenticator.ErrDuplicateAuthenticator),
		errors.Is(err, authenticator.ErrConflict),
		errors.Is(err, keys.ErrDuplicateKey),
		errors.Is(err, ceremony.ErrDuplicateRequest):
		return "conflict"
	case errors.Is(err, authenticator.ErrAlgorithmMismatch):
		return "algorithm_mismatch"
	case errors.Is(err, authenticator.ErrCredentialMismatch):
		return "credential_mismatch"
	case errors.Is(err, token.ErrTokenValidation),
		errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, authenticator.ErrBadRequest),
		errors.Is(err, keys.ErrUnsupportedKeyType),
		errors.Is(err, ErrInvalidRequest):
		return "bad_request"
	default:
		return "internal_error"
	}
}

// handleError maps the error to a status code and writes the error response.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err, mapErrorToStatusCode(err))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
