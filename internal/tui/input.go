package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/efeideo/drug-form/internal/wizard"
)

// noAnswer is the select option for leaving an optional choice empty
const noAnswer = ""

// parseInput converts text typed into an input widget into a Value of the
// field's kind. An empty string yields ok=false.
func parseInput(f wizard.FieldDefinition, s string) (v wizard.Value, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return wizard.Value{}, false, nil
	}

	switch f.Kind {
	case wizard.FieldIntRange:
		n, err := strconv.Atoi(s)
		if err != nil {
			return wizard.Value{}, false, fmt.Errorf("%s must be a whole number", f.Label)
		}
		return wizard.Int(n), true, nil
	case wizard.FieldDate:
		t, err := time.Parse(wizard.DateLayout, s)
		if err != nil {
			return wizard.Value{}, false, fmt.Errorf("%s must be formatted YYYY-MM-DD", f.Label)
		}
		return wizard.Date(t), true, nil
	default:
		return wizard.Text(s), true, nil
	}
}

// validator returns an input validation func checking the field's domain
func validator(f wizard.FieldDefinition, now func() time.Time) func(string) error {
	return func(s string) error {
		v, ok, err := parseInput(f, s)
		if err != nil || !ok {
			return err
		}
		var invalid *wizard.InvalidFieldValueError
		if err := f.Check(v, now()); errors.As(err, &invalid) {
			return fmt.Errorf("%s %s", f.Label, invalid.Reason)
		} else if err != nil {
			return err
		}
		return nil
	}
}

// initialText renders a stored value back into an input widget
func initialText(answers wizard.AnswerSet, key string) string {
	v, ok := answers.Get(key)
	if !ok {
		return ""
	}
	return v.String()
}

// initialChoice returns the stored single choice, or noAnswer
func initialChoice(answers wizard.AnswerSet, key string) string {
	v, ok := answers.Get(key)
	if !ok {
		return noAnswer
	}
	s, _ := v.AsText()
	return s
}

// initialList returns the stored multi choice
func initialList(answers wizard.AnswerSet, key string) []string {
	v, ok := answers.Get(key)
	if !ok {
		return nil
	}
	l, _ := v.AsList()
	return l
}

// visibleKeys lists the keys of the fields currently visible on a step
func visibleKeys(ctrl *wizard.Controller, s *wizard.Session, step int) []string {
	var keys []string
	for f := range ctrl.VisibleFields(s, step) {
		keys = append(keys, f.Key)
	}
	return keys
}
