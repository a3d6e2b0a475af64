package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mymapsapp/mymaps-server/internal/errors"
)

// PostgREST and Postgres codes that decide the error kind regardless of HTTP status.
const (
	codeNoRows           = "PGRST116"
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
	codeInvalidText      = "22P02"
	codeNotNull          = "23502"
	codeInsufficientPriv = "42501"
)

// backendError is the union of the error bodies PostgREST, GoTrue and storage return.
type backendError struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Details          string `json:"details"`
	Hint             string `json:"hint"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b backendError) text() string {
	for _, s := range []string{b.Message, b.Msg, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// normalize maps a non-2xx backend response to the closed error taxonomy.
func normalize(op string, status int, body []byte) error {
	var be backendError
	_ = json.Unmarshal(body, &be)

	msg := be.text()
	if msg == "" {
		msg = strings.ToLower(http.StatusText(status))
	}
	msg = op + ": " + msg

	var e *errors.Error
	switch be.Code {
	case codeNoRows:
		e = errors.NotFound(msg)
	case codeUniqueViolation, codeCheckViolation, codeInvalidText, codeNotNull:
		e = errors.Validation(msg)
	case codeInsufficientPriv:
		e = errors.Permission(msg)
	}
	if e == nil {
		e = byStatus(status, msg)
	}

	if be.Details != "" || be.Hint != "" || be.Code != "" {
		e = e.WithDetails(map[string]string{
			"backend_code": be.Code,
			"details":      be.Details,
			"hint":         be.Hint,
		})
	}
	return e
}

func byStatus(status int, msg string) *errors.Error {
	switch {
	case status == http.StatusNotFound:
		return errors.NotFound(msg)
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return errors.Validation(msg)
	case status == http.StatusUnauthorized:
		return errors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return errors.Permission(msg)
	case status == http.StatusTooManyRequests, status >= 500:
		return errors.Network(msg)
	case status == http.StatusNotAcceptable:
		// PostgREST answers 406 when a single-object read matched zero or many rows.
		return errors.NotFound(msg)
	default:
		return errors.Internal(msg)
	}
}
