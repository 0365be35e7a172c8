package domainerrors

import "errors"

// Code is a transport-agnostic failure category. Handlers translate codes to
// HTTP statuses; services and stores only ever speak in codes.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeBadRequest       Code = "bad_request"
	CodeInvalidInput     Code = "invalid_input"
	CodeValidation       Code = "validation_failed"
	CodeInternal         Code = "internal_error"
	CodeConflict         Code = "conflict"
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeTimeout          Code = "timeout"
	CodeInvalidState     Code = "invalid_state"
	CodeInvalidSignature Code = "invalid_signature"
	CodePermissionDenied Code = "permission_denied"
	CodeIntegrity        Code = "integrity_violation"
	CodeRateLimited      Code = "rate_limited"
)

// Error carries a stable Code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code so errors.Is(err, New(CodeConflict, "")) works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap wraps err with a code and message. An existing domain code in err's
// chain wins over code so a store-level NotFound is never downgraded to Internal.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Recode wraps err under code even when err already carries a domain code.
// Use it where a boundary owns the classification, such as signature checks.
func Recode(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first domain error in err's chain, or
// CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
