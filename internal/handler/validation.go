package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationMessage formats the first failed rule of a request body
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request body"
	}

	first := verrs[0]
	field := strings.ToLower(first.Field())
	switch first.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, first.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, first.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
