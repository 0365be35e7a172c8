package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encoding error cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates a domain error into its HTTP status and body.
// Foreign errors become 500 without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		domainErr = &dErrors.Error{Code: dErrors.CodeInternal, Message: "internal server error"}
	}
	msg := domainErr.Message
	if msg == "" || domainErr.Code == dErrors.CodeInternal {
		msg = defaultMessage(domainErr.Code, msg)
	}
	WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
		Error:            DomainCodeToHTTPCode(domainErr.Code),
		ErrorDescription: msg,
		Message:          msg,
	})
}

func defaultMessage(code dErrors.Code, msg string) string {
	if code == dErrors.CodeInternal {
		return "internal server error"
	}
	if msg != "" {
		return msg
	}
	return http.StatusText(DomainCodeToHTTPStatus(code))
}

func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvalidState:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeInvalidSignature, dErrors.CodePermissionDenied:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode returns the "error" field for a domain code.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeInvalidState:
		return "invalid_state"
	case dErrors.CodeInvalidSignature:
		return "invalid_signature"
	case dErrors.CodePermissionDenied:
		return "permission_denied"
	case dErrors.CodeIntegrity:
		return "integrity_violation"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// RequirePrincipal returns the authenticated caller. Reaching a handler
// without one means the route was mounted outside the auth middleware.
func RequirePrincipal(ctx context.Context, logger *slog.Logger) (requestcontext.Principal, error) {
	p, ok := requestcontext.GetPrincipal(ctx)
	if !ok {
		if logger != nil {
			logger.ErrorContext(ctx, "principal missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return requestcontext.Principal{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return p, nil
}

// QueryInt parses an optional integer query parameter.
func QueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}
