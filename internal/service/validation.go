package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/vaidashi/support-portal/pkg/errors"
)

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validationError converts the first validator failure into a field error
func validationError(err error) error {
	var ves validator.ValidationErrors

	if !errors.As(err, &ves) || len(ves) == 0 {
		return apperrors.NewValidationError("", err.Error())
	}

	fe := ves[0]
	field := fe.Namespace()

	// Drop the root struct name
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	return apperrors.NewValidationError(field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
