package app

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxFieldLength = 64

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their json name, the way clients send them
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// validateStruct returns the first failed rule of s as a *ValidationError.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	fe := errs[0]

	return invalid(fe.Field(), fieldMessage(fe))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Invalid email address."
	case "min", "max":
		return fmt.Sprintf("Field must be between 1 and %d characters long.", maxFieldLength)
	default:
		return "Invalid value."
	}
}
