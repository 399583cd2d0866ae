package dataset

import (
	"strconv"
	"time"
)

// Kind identifies what a single cell holds.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindTime
)

// Value is a single scalar cell. The zero value is null.
type Value struct {
	kind Kind
	num  float64
	str  string
	t    time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number wraps a float.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Time wraps a timestamp.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) Float() float64  { return v.num }
func (v Value) Time() time.Time { return v.t }

// String renders the value the way it is displayed in reports and used as a
// group label. Numbers use the shortest representation, so 1.0 renders "1".
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.str
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// Key is a kind-qualified string used for equality and grouping.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return "n:" + v.String()
	case KindText:
		return "s:" + v.str
	case KindTime:
		return "t:" + strconv.FormatInt(v.t.UnixNano(), 10)
	default:
		return "\x00"
	}
}

// Equal reports whether two values are identical. Two nulls are equal.
func (v Value) Equal(o Value) bool {
	return v.Key() == o.Key()
}

// Less orders values of the same kind: numerically, chronologically or
// lexically. Values of different kinds order by kind.
func (v Value) Less(o Value) bool {
	if v.kind != o.kind {
		return v.kind < o.kind
	}
	switch v.kind {
	case KindNumber:
		return v.num < o.num
	case KindTime:
		return v.t.Before(o.t)
	default:
		return v.str < o.str
	}
}

// Interface returns the value as a plain Go value for encoding.
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.str
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return nil
	}
}
