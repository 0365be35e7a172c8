package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	dErrors "rekamed/pkg/domain-errors"
	"rekamed/pkg/requestcontext"
)

// Normalizable bodies clean themselves up (trim, lowercase) before validation.
type Normalizable interface {
	Normalize()
}

type Validatable interface {
	Validate() error
}

// DecodeJSON strictly decodes the request body into T: unknown fields and
// trailing data are rejected. On failure it writes the error response and
// returns nil, false.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	if err == nil && dec.More() {
		err = errors.New("unexpected data after JSON body")
	}
	if err == nil {
		return &req, true
	}

	ctx := r.Context()
	logger.WarnContext(ctx, "rejected request body", "error", err, "request_id", requestcontext.RequestID(ctx))

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
			Error:            "payload_too_large",
			ErrorDescription: "request body too large",
			Message:          "request body too large",
		})
		return nil, false
	}
	WriteError(w, dErrors.New(dErrors.CodeBadRequest, decodeMessage(err)))
	return nil, false
}

// decodeMessage names the problem without echoing body content back.
func decodeMessage(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at byte %d", syntax.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return "invalid request body"
	}
}

// DecodeAndPrepare decodes, then runs Normalize and Validate when T has them.
// Plain validation errors become CodeValidation; domain errors keep their code.
//
//	req, ok := httputil.DecodeAndPrepare[decisionRequest](w, r, h.logger)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger)
	if !ok {
		return nil, false
	}
	if n, ok := any(req).(Normalizable); ok {
		n.Normalize()
	}
	v, ok := any(req).(Validatable)
	if !ok {
		return req, true
	}
	err := v.Validate()
	if err == nil {
		return req, true
	}

	ctx := r.Context()
	logger.WarnContext(ctx, "invalid request", "error", err, "request_id", requestcontext.RequestID(ctx))
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		err = dErrors.New(dErrors.CodeValidation, err.Error())
	}
	WriteError(w, err)
	return nil, false
}
