package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hipica/internal/util"
)

// Field is one slot of the canonical 12-field result record.
type Field int

const (
	FieldPosition Field = iota
	FieldHorseNumber
	FieldName
	FieldAge
	FieldHorseWeight
	FieldMargin
	FieldWeight
	FieldJockey
	FieldTrainer
	FieldStud
	FieldTime
	FieldOdds

	FieldCount = 12
)

// Shape is the expected value shape of a field.
type Shape int

const (
	ShapeText Shape = iota
	ShapeInteger
	ShapeDecimal
	ShapeTimeCode
)

var fieldSpecs = [FieldCount]struct {
	key   string
	shape Shape
}{
	FieldPosition:    {"position", ShapeText},
	FieldHorseNumber: {"horse_number", ShapeInteger},
	FieldName:        {"name", ShapeText},
	FieldAge:         {"age", ShapeInteger},
	FieldHorseWeight: {"horse_weight", ShapeInteger},
	FieldMargin:      {"margin", ShapeText},
	FieldWeight:      {"weight", ShapeDecimal},
	FieldJockey:      {"jockey", ShapeText},
	FieldTrainer:     {"trainer", ShapeText},
	FieldStud:        {"stud", ShapeText},
	FieldTime:        {"time", ShapeTimeCode},
	FieldOdds:        {"odds", ShapeDecimal},
}

func (f Field) String() string {
	if f < 0 || f >= FieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldSpecs[f].key
}

func (f Field) Shape() Shape { return fieldSpecs[f].shape }

// Fields lists the canonical fields in record order.
func Fields() []Field {
	out := make([]Field, FieldCount)
	for i := range out {
		out[i] = Field(i)
	}
	return out
}

// Value holds one canonical field. The zero Value is the unavailable marker.
type Value struct {
	text string
	num  float64
	ok   bool
}

func (v Value) Available() bool { return v.ok }

// String returns the canonical text form, or "" when unavailable.
func (v Value) String() string { return v.text }

func (v Value) Int() int { return int(v.num) }

func (v Value) Float() float64 { return v.num }

// Record is the canonical result record. It always carries all 12 fields.
type Record struct {
	values [FieldCount]Value
}

func (r Record) Get(f Field) Value { return r.values[f] }

// Unavailable lists the fields carrying the unavailable marker.
func (r Record) Unavailable() []Field {
	var out []Field
	for i, v := range r.values {
		if !v.ok {
			out = append(out, Field(i))
		}
	}
	return out
}

// RecordFrom builds a record from raw strings keyed by field, coercing each
// value to its field shape. Fields not present or not coercible are unavailable.
func RecordFrom(raw map[Field]string) Record {
	var r Record
	for f, s := range raw {
		if f < 0 || f >= FieldCount {
			continue
		}
		if v, ok := coerce(f, s); ok {
			r.values[f] = v
		}
	}
	return r
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range r.values {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(fieldSpecs[i].key)
		buf.Write(key)
		buf.WriteByte(':')
		if !v.ok {
			buf.WriteString("null")
			continue
		}
		switch fieldSpecs[i].shape {
		case ShapeInteger:
			buf.WriteString(strconv.FormatInt(int64(v.num), 10))
		case ShapeDecimal:
			buf.WriteString(strconv.FormatFloat(v.num, 'f', -1, 64))
		default:
			text, err := json.Marshal(v.text)
			if err != nil {
				return nil, err
			}
			buf.Write(text)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{}
	for i, spec := range fieldSpecs {
		msg, ok := raw[spec.key]
		if !ok || string(msg) == "null" {
			continue
		}
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			var num json.Number
			if err := json.Unmarshal(msg, &num); err != nil {
				return fmt.Errorf("field %s: %w", spec.key, err)
			}
			text = num.String()
		}
		if v, ok := coerce(Field(i), text); ok {
			r.values[i] = v
		}
	}
	return nil
}

var timeCodePattern = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})[.,](\d{2})$`)

// coerce converts a cell to the shape of f.
func coerce(f Field, raw string) (Value, bool) {
	s := util.NormalizeSpaces(raw)
	if s == "" {
		return Value{}, false
	}
	switch fieldSpecs[f].shape {
	case ShapeInteger:
		s = strings.TrimRight(s, "°º ")
		n, err := strconv.Atoi(s)
		if err != nil {
			return Value{}, false
		}
		return Value{text: strconv.Itoa(n), num: float64(n), ok: true}, true
	case ShapeDecimal:
		n, ok := util.ParseDecimal(s)
		if !ok {
			return Value{}, false
		}
		return Value{text: strconv.FormatFloat(n, 'f', -1, 64), num: n, ok: true}, true
	case ShapeTimeCode:
		m := timeCodePattern.FindStringSubmatch(s)
		if m == nil {
			return Value{}, false
		}
		return Value{text: m[1] + ":" + m[2] + "." + m[3], ok: true}, true
	default:
		if f == FieldPosition {
			s = strings.TrimSpace(strings.TrimRight(s, "°º"))
			s = strings.ToUpper(s)
			if s == "" {
				return Value{}, false
			}
		}
		return Value{text: s, ok: true}, true
	}
}
