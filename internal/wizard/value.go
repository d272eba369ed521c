package wizard

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies which member of a Value is populated
type ValueKind string

const (
	KindText    ValueKind = "text"
	KindInteger ValueKind = "integer"
	KindBoolean ValueKind = "boolean"
	KindDate    ValueKind = "date"
	KindList    ValueKind = "list"
)

// DateLayout is the calendar-day format used for date answers
const DateLayout = "2006-01-02"

// Value is a single answer recorded for a field.
type Value struct {
	kind ValueKind
	text string
	num  int
	flag bool
	date time.Time
	list []string
}

// Text returns a free-text or single-choice value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Int returns an integer value.
func Int(n int) Value { return Value{kind: KindInteger, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBoolean, flag: b} }

// Date returns a date value truncated to the calendar day.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// List returns an ordered multi-choice value. The slice is copied.
func List(items ...string) Value {
	return Value{kind: KindList, list: slices.Clone(items)}
}

// Kind returns the kind of the value
func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether the value was never set
func (v Value) IsZero() bool { return v.kind == "" }

// AsText returns the text member and whether the value is text
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// AsInt returns the integer member and whether the value is an integer
func (v Value) AsInt() (int, bool) { return v.num, v.kind == KindInteger }

// AsBool returns the boolean member and whether the value is a boolean
func (v Value) AsBool() (bool, bool) { return v.flag, v.kind == KindBoolean }

// AsDate returns the date member and whether the value is a date
func (v Value) AsDate() (time.Time, bool) { return v.date, v.kind == KindDate }

// AsList returns a copy of the list member and whether the value is a list
func (v Value) AsList() ([]string, bool) { return slices.Clone(v.list), v.kind == KindList }

// Contains reports whether a list value holds item
func (v Value) Contains(item string) bool {
	return v.kind == KindList && slices.Contains(v.list, item)
}

// Equal reports whether two values have the same kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindInteger:
		return v.num == o.num
	case KindBoolean:
		return v.flag == o.flag
	case KindDate:
		return v.date.Equal(o.date)
	case KindList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

// String renders the value for the notification dump.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindInteger:
		return strconv.Itoa(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.flag)
	case KindDate:
		return v.date.Format(DateLayout)
	case KindList:
		return "[" + strings.Join(v.list, ", ") + "]"
	}
	return ""
}

// Interface returns the value as a plain Go value, suitable for JSON views
func (v Value) Interface() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindInteger:
		return v.num
	case KindBoolean:
		return v.flag
	case KindDate:
		return v.date.Format(DateLayout)
	case KindList:
		return slices.Clone(v.list)
	}
	return nil
}

type valueJSON struct {
	Kind    ValueKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Integer int       `json:"integer,omitempty"`
	Boolean bool      `json:"boolean,omitempty"`
	Date    string    `json:"date,omitempty"`
	List    []string  `json:"list,omitempty"`
}

// MarshalJSON encodes the value with its kind so it survives a session store round trip
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.kind}
	switch v.kind {
	case KindText:
		out.Text = v.text
	case KindInteger:
		out.Integer = v.num
	case KindBoolean:
		out.Boolean = v.flag
	case KindDate:
		out.Date = v.date.Format(DateLayout)
	case KindList:
		out.List = v.list
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a value written by MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindText:
		*v = Text(in.Text)
	case KindInteger:
		*v = Int(in.Integer)
	case KindBoolean:
		*v = Bool(in.Boolean)
	case KindDate:
		t, err := time.Parse(DateLayout, in.Date)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", in.Date, err)
		}
		*v = Date(t)
	case KindList:
		*v = List(in.List...)
	default:
		return fmt.Errorf("unknown value kind %q", in.Kind)
	}
	return nil
}

// AnswerSet maps field keys to the values recorded for them.
// Values are never purged when a field becomes hidden.
type AnswerSet map[string]Value

// Get returns the value stored for key
func (a AnswerSet) Get(key string) (Value, bool) {
	v, ok := a[key]
	return v, ok
}

// Text returns the stored text for key, or "" when absent or not text
func (a AnswerSet) Text(key string) string {
	s, _ := a[key].AsText()
	return s
}

// Clone returns an independent copy of the answer set
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		if v.kind == KindList {
			v.list = slices.Clone(v.list)
		}
		out[k] = v
	}
	return out
}
