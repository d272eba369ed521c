package wizard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooSoon is returned when a submission arrives inside the anti-spam window
var ErrTooSoon = errors.New("you are submitting too quickly, please wait a few seconds before trying again")

// InvalidFieldValueError reports a value outside a field's declared domain.
type InvalidFieldValueError struct {
	Field  string
	Value  string
	Reason string
}

func (e *InvalidFieldValueError) Error() string {
	return fmt.Sprintf("invalid value %q for field %s: %s", e.Value, e.Field, e.Reason)
}

// MissingFieldsError blocks a submission and lists the labels of the absent fields.
type MissingFieldsError struct {
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "please fill in the following required fields: " + strings.Join(e.Labels, ", ")
}

// IsInvalidFieldValue reports whether err is an InvalidFieldValueError
func IsInvalidFieldValue(err error) bool {
	var target *InvalidFieldValueError
	return errors.As(err, &target)
}

// IsMissingFields returns the MissingFieldsError wrapped in err, if any
func IsMissingFields(err error) (*MissingFieldsError, bool) {
	var target *MissingFieldsError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
