package handler

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse describes one field that failed validation.
type ErrorResponse struct {
	FailedField string `json:"field"`
	Tag         string `json:"tag"`
	Value       any    `json:"value,omitempty"`
}

// XValidator validates decoded request bodies.
type XValidator struct {
	validator *validator.Validate
}

// NewValidator returns a validator using json field names in its reports.
func NewValidator() XValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return XValidator{validator: v}
}

// Validate returns one ErrorResponse per failed field, or nil.
func (v XValidator) Validate(data any) []ErrorResponse {
	err := v.validator.Struct(data)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return []ErrorResponse{{Tag: err.Error()}}
	}

	out := make([]ErrorResponse, 0, len(errs))
	for _, fe := range errs {
		out = append(out, ErrorResponse{
			FailedField: fe.Field(),
			Tag:         fe.Tag(),
			Value:       fe.Value(),
		})
	}

	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")

	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}
