package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code carried across service boundaries.
// Handlers translate codes to HTTP statuses; services never import net/http.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeUnauthorized Code = "unauthorized"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeInternal     Code = "internal"

	// Payment pipeline codes.
	CodeAlreadyMember           Code = "already_member"
	CodeEventNotFound           Code = "event_not_found"
	CodeEventPriceMissing       Code = "event_price_missing"
	CodeEventNotFree            Code = "event_not_free"
	CodeUserNotFound            Code = "user_not_found"
	CodeIntentPersistenceFailed Code = "intent_persistence_failed"
	CodeInvalidSignature        Code = "invalid_signature"
	CodeMissingCorrelation      Code = "missing_correlation"
	CodeCapacityExceeded        Code = "capacity_exceeded"
)

// DomainError pairs a code with a human-readable message and an optional
// wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e DomainError) Unwrap() error {
	return e.Err
}

// New builds a DomainError with the given code and message.
func New(code Code, message string) error {
	return DomainError{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, keeping the
// cause reachable through errors.Is/As.
func Wrap(err error, code Code, message string) error {
	return DomainError{Code: code, Message: message, Err: err}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to an HTTP status for the transport edge.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeEventNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeAlreadyMember, CodeEventPriceMissing, CodeEventNotFree, CodeCapacityExceeded:
		return http.StatusConflict
	case CodeInvalidSignature:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
