package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stemreport/apiserver/internal/store"
)

var (
	// ErrUnauthorized is returned when the access policy denies the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidTransition is returned when the report is not in a state the
	// requested operation may start from, including a lost compare-and-set.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrValidation is returned for malformed input. It is wrapped with the
	// offending field.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is store.ErrNotFound, re-exported so callers of the
	// services need not import the store.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidCredentials is returned by Authenticate for an unknown
	// email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when an account with the email exists.
	ErrEmailTaken = fmt.Errorf("%w: email is already registered", ErrValidation)
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags of v and converts failures into
// ErrValidation naming the first offending field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on %s", ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

