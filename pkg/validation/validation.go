// Package validation checks decoded request bodies against their struct tags
// and turns failures into CodeValidation domain errors.
package validation

import (
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "rekamed/pkg/domain-errors"
)

// signatureLen is r || s || v of a secp256k1 signature.
const signatureLen = 65

var v = build()

func build() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	val.RegisterValidation("hexsig", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			s = s[2:]
		}
		raw, err := hex.DecodeString(s)
		return err == nil && len(raw) == signatureLen
	})
	val.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return val
}

// Validate reports every failing field of req in one CodeValidation error.
func Validate(req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return dErrors.New(dErrors.CodeValidation, "invalid request body")
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		msgs = append(msgs, describe(fe))
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

var templates = map[string]string{
	"required": "%s is required",
	"email":    "%s must be a valid email",
	"uuid":     "%s must be a valid uuid",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"oneof":    "%s must be one of [%s]",
	"notblank": "%s must not be blank",
	"hexsig":   "%s must be a 65-byte hex signature",
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	tmpl, ok := templates[fe.ActualTag()]
	if !ok {
		return field + " is invalid"
	}
	if strings.Count(tmpl, "%s") == 2 {
		return fmt.Sprintf(tmpl, field, fe.Param())
	}
	return fmt.Sprintf(tmpl, field)
}
