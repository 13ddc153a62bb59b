package apierrors

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in messages use
// the json tag of each field.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct validates v with struct tags and returns a 422 *Error on failure
func ValidateStruct(v interface{}, msg string) error {
	if err := Validator().Struct(v); err != nil {
		return FromValidator(err, msg)
	}
	return nil
}

// FromValidator converts go-playground/validator errors into a 422 error with
// one sorted entry per failing field. Other errors are returned unchanged.
func FromValidator(err error, msg string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	list := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		list = append(list, fieldMessage(fe))
	}
	sort.Strings(list)

	if msg == "" {
		msg = "The given data failed to pass validation."
	}
	return ValidationFailed(msg, list...).Wrap(err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	switch fe.Tag() {
	case "required":
		return field + " required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
