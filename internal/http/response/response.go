// Package response writes the JSON envelope shared by every API response, for the handlers
// that sit outside huma (middleware, the OAuth relay, the event stream).
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mymapsapp/mymaps-server/internal/errors"
)

// EnvelopeVersion is the version of the envelope format, sent as "v".
const EnvelopeVersion = 1

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes data wrapped in an envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, Envelope{V: EnvelopeVersion, Success: status < 400, Data: data}, logger)
}

// Success writes a successful JSON response (200 OK).
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// NoContent writes a no content response (204 No Content).
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Fail writes an error envelope with an explicit status and code.
func Fail(w http.ResponseWriter, status int, code errors.Code, message string, logger *slog.Logger) {
	write(w, status, Envelope{V: EnvelopeVersion, Code: string(code), Message: message}, logger)
}

// BadRequest writes a 400 Bad Request response.
func BadRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	Fail(w, http.StatusBadRequest, errors.CodeValidation, message, logger)
}

// Unauthorized writes a 401 Unauthorized response.
func Unauthorized(w http.ResponseWriter, message string, logger *slog.Logger) {
	Fail(w, http.StatusUnauthorized, errors.CodeUnauthorized, message, logger)
}

// TooManyRequests writes a 429 response. The code is NETWORK: the client may retry later.
func TooManyRequests(w http.ResponseWriter, message string, logger *slog.Logger) {
	w.Header().Set("Retry-After", "1")
	Fail(w, http.StatusTooManyRequests, errors.CodeNetwork, message, logger)
}

// HandleError writes the envelope for err. Domain errors keep their code and details;
// anything else becomes a 500 and is logged.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		write(w, domainErr.HTTPStatus(), Envelope{
			V:       EnvelopeVersion,
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if logger != nil {
		logger.Error("unhandled error", "error", err)
	}
	Fail(w, http.StatusInternalServerError, errors.CodeInternal, "internal server error", logger)
}

func write(w http.ResponseWriter, status int, env Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(env); err != nil && logger != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
