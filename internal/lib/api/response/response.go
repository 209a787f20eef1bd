package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	Status  string       `json:"status"`
	Error   string       `json:"error,omitempty"`
	Details []FieldError `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

func OK() Response {
	return Response{
		Status: StatusOK,
	}
}

func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	details := make([]FieldError, 0, len(errs))

	for _, err := range errs {
		details = append(details, FieldError{
			Field:   jsonName(err.Field()),
			Tag:     err.Tag(),
			Message: message(err),
		})
	}

	return Response{
		Status:  StatusError,
		Error:   "validation failed",
		Details: details,
	}
}

// InvalidField builds a validation response for checks the validator tags can't express.
func InvalidField(field, tag, msg string) Response {
	return Response{
		Status:  StatusError,
		Error:   "validation failed",
		Details: []FieldError{{Field: field, Tag: tag, Message: msg}},
	}
}

func message(err validator.FieldError) string {
	field := jsonName(err.Field())

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("field %s is a required field", field)
	case "email":
		return fmt.Sprintf("field %s is not a valid email", field)
	case "min":
		return fmt.Sprintf("field %s must be at least %s characters", field, err.Param())
	case "max":
		return fmt.Sprintf("field %s must be at most %s characters", field, err.Param())
	default:
		return fmt.Sprintf("field %s is not valid", field)
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}

	return strings.ToLower(field[:1]) + field[1:]
}
