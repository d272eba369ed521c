package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FieldKind is the input widget family a field is rendered with
type FieldKind string

const (
	FieldText         FieldKind = "text"
	FieldSingleChoice FieldKind = "single_choice"
	FieldMultiChoice  FieldKind = "multi_choice"
	FieldIntRange     FieldKind = "int_range"
	FieldDate         FieldKind = "date"
	FieldBoolean      FieldKind = "boolean"
)

// Predicate decides something from the current answers
type Predicate func(AnswerSet) bool

// Domain bounds the values a field accepts.
type Domain struct {
	// Options enumerates the accepted choices for single/multi choice fields
	Options []string
	// Min is the inclusive lower bound for integer fields
	Min int
	// Max is the inclusive upper bound for integer fields; ignored when Unbounded
	Max int
	// Unbounded lifts the upper bound
	Unbounded bool
	// MaxCurrentYear replaces Max with the year of the validation clock
	MaxCurrentYear bool
}

// UpperBound returns the effective inclusive maximum at now, and false when there is none
func (d Domain) UpperBound(now time.Time) (int, bool) {
	switch {
	case d.MaxCurrentYear:
		return now.Year(), true
	case d.Unbounded:
		return 0, false
	default:
		return d.Max, true
	}
}

// FieldDefinition is static metadata describing one collectible datum.
type FieldDefinition struct {
	Key      string
	Label    string
	Kind     FieldKind
	Domain   Domain
	Required bool
	// Visible gates rendering; nil means always visible
	Visible Predicate
	// Advise returns a non-blocking warning for a stored value, or ""
	Advise func(Value) string
}

// IsVisible evaluates the field's visibility predicate against answers
func (f FieldDefinition) IsVisible(answers AnswerSet) bool {
	return f.Visible == nil || f.Visible(answers)
}

// DisplayLabel returns the label with the required marker appended
func (f FieldDefinition) DisplayLabel() string {
	if f.Required {
		return f.Label + " *"
	}
	return f.Label
}

// Check validates v against the field's kind and domain as of now
func (f FieldDefinition) Check(v Value, now time.Time) error {
	reject := func(reason string) error {
		return &InvalidFieldValueError{Field: f.Key, Value: v.String(), Reason: reason}
	}

	switch f.Kind {
	case FieldText:
		if v.Kind() != KindText {
			return reject("expected text")
		}
	case FieldSingleChoice:
		s, ok := v.AsText()
		if !ok {
			return reject("expected a single choice")
		}
		if !slices.Contains(f.Domain.Options, s) {
			return reject(fmt.Sprintf("must be one of %s", strings.Join(f.Domain.Options, ", ")))
		}
	case FieldMultiChoice:
		items, ok := v.AsList()
		if !ok {
			return reject("expected a list of choices")
		}
		seen := make(map[string]bool, len(items))
		for _, item := range items {
			if !slices.Contains(f.Domain.Options, item) {
				return reject(fmt.Sprintf("%q is not one of %s", item, strings.Join(f.Domain.Options, ", ")))
			}
			if seen[item] {
				return reject(fmt.Sprintf("%q selected more than once", item))
			}
			seen[item] = true
		}
	case FieldIntRange:
		n, ok := v.AsInt()
		if !ok {
			return reject("expected an integer")
		}
		if n < f.Domain.Min {
			return reject(fmt.Sprintf("must be at least %d", f.Domain.Min))
		}
		if hi, bounded := f.Domain.UpperBound(now); bounded && n > hi {
			return reject(fmt.Sprintf("must be between %d and %d", f.Domain.Min, hi))
		}
	case FieldDate:
		if v.Kind() != KindDate {
			return reject("expected a date")
		}
	case FieldBoolean:
		if v.Kind() != KindBoolean {
			return reject("expected true or false")
		}
	default:
		return reject("unsupported field kind")
	}
	return nil
}

// Decode converts a raw JSON value into a Value of the field's kind.
// Integers may be sent as numbers or numeric strings, dates as YYYY-MM-DD.
func (f FieldDefinition) Decode(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	bad := func(reason string) (Value, error) {
		return Value{}, &InvalidFieldValueError{Field: f.Key, Value: string(raw), Reason: reason}
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return bad("value is required")
	}

	switch f.Kind {
	case FieldText, FieldSingleChoice:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return bad("expected a string")
		}
		return Text(s), nil
	case FieldMultiChoice:
		var items []string
		if err := json.Unmarshal(raw, &items); err != nil {
			return bad("expected an array of strings")
		}
		return List(items...), nil
	case FieldIntRange:
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return Int(n), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return bad("expected an integer")
		}
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil || fmt.Sprint(n) != strings.TrimSpace(s) {
			return bad("expected an integer")
		}
		return Int(n), nil
	case FieldDate:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return bad("expected a date string")
		}
		t, err := time.Parse(DateLayout, s)
		if err != nil {
			return bad("expected a date formatted YYYY-MM-DD")
		}
		return Date(t), nil
	case FieldBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return bad("expected true or false")
		}
		return Bool(b), nil
	}
	return bad("unsupported field kind")
}
