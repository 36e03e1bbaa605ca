package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrMalformedRequest is returned when the inbound request cannot be
	// turned into a Request.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrBackendUnavailable is returned when the backend cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrContractViolation is returned when the backend answers with no row
	// or a row that cannot be decoded.
	ErrContractViolation = errors.New("backend contract violation")
)

// RejectedError is an application-level error reported by the backend itself
// (bad filter syntax, permission denied, constraint violation). It carries the
// status and body the client should see and is never turned into a 500.
type RejectedError struct {
	Status int
	Body   string
	Err    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request with status %d: %v", e.Status, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Result returns the rejection as a backend result so it flows through the
// regular response path.
func (e *RejectedError) Result() *Result {
	body := e.Body
	return &Result{Body: &body, Status: e.Status}
}

// pgErrorBody is the JSON shape of a rejected call, matching what PostgREST
// clients already parse.
type pgErrorBody struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}

func newRejectedError(pgErr *pgconn.PgError) *RejectedError {
	b := pgErrorBody{Code: pgErr.Code, Message: pgErr.Message}
	if pgErr.Detail != "" {
		b.Details = &pgErr.Detail
	}
	if pgErr.Hint != "" {
		b.Hint = &pgErr.Hint
	}
	body, _ := json.Marshal(b)
	return &RejectedError{
		Status: statusForSQLState(pgErr.Code),
		Body:   string(body),
		Err:    pgErr,
	}
}

// statusForSQLState maps a SQLSTATE to an HTTP status.
// See https://docs.postgrest.org/en/stable/references/errors.html
func statusForSQLState(code string) int {
	switch code {
	case "23503", "23505":
		return http.StatusConflict
	case "25006":
		return http.StatusMethodNotAllowed
	case "42883", "42P01":
		return http.StatusNotFound
	case "42501", "28000", "28P01":
		return http.StatusForbidden
	case "P0001":
		return http.StatusBadRequest
	case "53400":
		return http.StatusInternalServerError
	}

	if len(code) < 2 {
		return http.StatusInternalServerError
	}
	switch code[:2] {
	case "08", "53", "54", "57":
		return http.StatusServiceUnavailable
	case "09", "0L", "0P", "P0", "XX", "58", "F0", "HV":
		return http.StatusInternalServerError
	case "22", "23", "2F", "3F", "42":
		return http.StatusBadRequest
	case "25", "40":
		return http.StatusInternalServerError
	}

	// PTxyz lets SQL code raise an arbitrary HTTP status
	if code[0] == 'P' && code[1] == 'T' && len(code) == 5 {
		var status int
		if _, err := fmt.Sscanf(code[2:], "%d", &status); err == nil && status >= 100 && status <= 599 {
			return status
		}
	}
	return http.StatusBadRequest
}
