package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level, concurrency-safe validator instance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON request body into dst. It enforces a max body size.
// Unknown fields are tolerated: installer agents and older mobile builds send
// extra keys.
func Decode(r *http.Request, dst any) error {
	const maxBody = 1 << 20 // 1 MiB

	body := http.MaxBytesReader(nil, r.Body, maxBody)
	defer body.Close()

	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			return fmt.Errorf("cuerpo demasiado grande (max 1 MiB)")
		case errors.Is(err, io.EOF):
			return fmt.Errorf("cuerpo vacio")
		default:
			return fmt.Errorf("JSON invalido")
		}
	}

	if dec.More() {
		return fmt.Errorf("el cuerpo debe contener un unico objeto JSON")
	}

	return nil
}

// Validate runs struct-tag validation on v and returns a single message
// naming each failed field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldErrorMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// DecodeAndValidate decodes a JSON body and validates the result. On failure
// it writes a 400 response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := Decode(r, dst); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	if err := Validate(dst); err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// fieldErrorMessage returns a client-facing message for a field error.
func fieldErrorMessage(fe validator.FieldError) string {
	field := toSnakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s es requerido", field)
	case "min":
		return fmt.Sprintf("%s debe ser al menos %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s debe ser como maximo %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s debe ser uno de: %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s debe ser mayor o igual a %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s debe ser menor o igual a %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s no supera la validacion '%s'", field, fe.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + 32)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
