// internal/pkg/validation/validation.go
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/your-org/ops-ledger/internal/pkg/apperror"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Collect validates s against its `validate` tags and appends every violation to fields
func Collect(s any, fields *apperror.Fields) {
	err := instance().Struct(s)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields.Add("request", "%s", err.Error())
		return
	}

	for _, fe := range verrs {
		fields.Add(fieldPath(fe.Namespace()), "%s", describe(fe))
	}
}

// Struct validates s and returns a validation error listing every violation
func Struct(s any, message string) error {
	var fields apperror.Fields
	Collect(s, &fields)
	return fields.Err(message)
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " item(s)"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	case "unique":
		return "must not contain duplicates"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
