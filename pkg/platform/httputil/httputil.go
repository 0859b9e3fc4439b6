package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "github.com/Atmajo/credora-server/pkg/domain-errors"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	// The response body may be incomplete, but headers are already sent.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and error responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		code := DomainCodeToHTTPCode(domainErr.Code)
		response := map[string]string{
			"error": code,
		}
		if domainErr.Message != "" {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, status, response)
		return
	}

	// Fallback for unexpected errors
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeLengthMismatch:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeAlreadyRegistered, dErrors.CodeAlreadyVerified, dErrors.CodeAlreadyRevoked:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeNotAdmin, dErrors.CodeNotAuthorizedIssuer, dErrors.CodeNotIssuer:
		return http.StatusForbidden
	case dErrors.CodeTxPending:
		return http.StatusAccepted
	case dErrors.CodeTxReverted:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to HTTP error codes (for JSON response).
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeLengthMismatch:
		return "length_mismatch"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeAlreadyRegistered:
		return "already_registered"
	case dErrors.CodeAlreadyVerified:
		return "already_verified"
	case dErrors.CodeAlreadyRevoked:
		return "already_revoked"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeNotAdmin:
		return "not_admin"
	case dErrors.CodeNotAuthorizedIssuer:
		return "not_authorized_issuer"
	case dErrors.CodeNotIssuer:
		return "not_issuer"
	case dErrors.CodeTxPending:
		return "transaction_pending"
	case dErrors.CodeTxReverted:
		return "transaction_reverted"
	case dErrors.CodeTimeout:
		return "chain_timeout"
	case dErrors.CodeUnavailable:
		return "unavailable"
	case dErrors.CodeInternal:
		return "internal_error"
	default:
		return "internal_error"
	}
}
