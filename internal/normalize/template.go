package normalize

import (
	"fmt"
	"strings"
)

// Precedence decides who wins when a fixed slot and the content tag of its
// cell disagree.
type Precedence int

const (
	// PositionalFirst keeps the cell in its fixed slot whatever its content.
	PositionalFirst Precedence = iota
	// ContentFirst releases a fixed cell with an unexpected tag to the content claims.
	ContentFirst
)

func (p Precedence) String() string {
	if p == ContentFirst {
		return "content"
	}
	return "positional"
}

func ParsePrecedence(s string) (Precedence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positional", "position":
		return PositionalFirst, nil
	case "content":
		return ContentFirst, nil
	default:
		return PositionalFirst, fmt.Errorf("unknown precedence %q", s)
	}
}

// ParsePrecedenceMap parses "HCH=positional,CHS=content".
func ParsePrecedenceMap(s string) (map[string]Precedence, error) {
	out := map[string]Precedence{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		venue, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("precedence entry %q: want VENUE=positional|content", part)
		}
		p, err := ParsePrecedence(value)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(strings.TrimSpace(venue))] = p
	}
	return out, nil
}

// Span is an inclusive window of source indexes. Negative bounds count from
// the end of the row (-1 is the last cell).
type Span struct {
	From int
	To   int
}

// AnySpan covers the whole row.
var AnySpan = Span{From: 0, To: -1}

func (s Span) bounds(width int) (int, int) {
	return resolveIndex(s.From, width), resolveIndex(s.To, width)
}

func resolveIndex(idx, width int) int {
	if idx < 0 {
		return width + idx
	}
	return idx
}

// Slot pins a source column to a field. Accept lists the content tags the
// column is expected to carry.
type Slot struct {
	Index  int
	Field  Field
	Accept []Kind
}

func (s Slot) accepts(k Kind) bool {
	for _, a := range s.Accept {
		if a == k {
			return true
		}
	}
	return false
}

// Claim assigns the first unclaimed cell of Kind inside Span to Field. With
// Last set, the last matching cell wins and earlier ones are discarded as
// redundant.
type Claim struct {
	Field Field
	Kind  Kind
	Span  Span
	Last  bool
}

// Template is a per-layout column map, selected by row width.
type Template struct {
	Name       string
	MinWidth   int
	MaxWidth   int
	Fixed      []Slot
	Claims     []Claim
	Optional   []Field
	Leftover   Reason
	Precedence Precedence
}

func (t Template) fits(width int) bool {
	return width >= t.MinWidth && width <= t.MaxWidth
}

func (t Template) optional(f Field) bool {
	for _, o := range t.Optional {
		if o == f {
			return true
		}
	}
	return false
}

// Standard is the CHS/VSC layout: place, number and horse at the front, the
// rest resolved by content. Every row narrower than the extended layout
// takes it.
var Standard = Template{
	Name:     "standard",
	MinWidth: 11,
	MaxWidth: 17,
	Fixed: []Slot{
		{Index: 0, Field: FieldPosition, Accept: []Kind{KindInteger, KindStatus}},
		{Index: 1, Field: FieldHorseNumber, Accept: []Kind{KindInteger}},
		{Index: 2, Field: FieldName, Accept: []Kind{KindName, KindOther}},
	},
	Claims: []Claim{
		{Field: FieldWeight, Kind: KindWeight, Span: Span{From: 3, To: -1}},
		{Field: FieldWeight, Kind: KindInteger, Span: Span{From: 3, To: 3}},
		{Field: FieldTime, Kind: KindTimeCode, Span: AnySpan, Last: true},
		{Field: FieldOdds, Kind: KindOdds, Span: AnySpan, Last: true},
		{Field: FieldMargin, Kind: KindMargin, Span: AnySpan},
		{Field: FieldHorseWeight, Kind: KindBodyWeight, Span: AnySpan},
		{Field: FieldJockey, Kind: KindName, Span: AnySpan},
		{Field: FieldTrainer, Kind: KindName, Span: AnySpan},
		{Field: FieldStud, Kind: KindName, Span: AnySpan},
	},
	Optional: []Field{FieldAge, FieldHorseWeight, FieldMargin},
	Leftover: ReasonUnclaimed,
}

// Extended is the 20-column HCH layout. Columns 3-5 float, 6 and 7 carry
// weight and jockey, the tail holds sectional times and the dividend.
var Extended = Template{
	Name:     "extended",
	MinWidth: 18,
	MaxWidth: 20,
	Fixed: []Slot{
		{Index: 0, Field: FieldPosition, Accept: []Kind{KindInteger, KindStatus}},
		{Index: 1, Field: FieldHorseNumber, Accept: []Kind{KindInteger}},
		{Index: 2, Field: FieldName, Accept: []Kind{KindName, KindOther}},
		{Index: 6, Field: FieldWeight, Accept: []Kind{KindWeight, KindInteger}},
		{Index: 7, Field: FieldJockey, Accept: []Kind{KindName}},
		{Index: -1, Field: FieldOdds, Accept: []Kind{KindOdds, KindInteger}},
	},
	Claims: []Claim{
		{Field: FieldAge, Kind: KindInteger, Span: Span{From: 3, To: 5}},
		{Field: FieldHorseWeight, Kind: KindBodyWeight, Span: Span{From: 3, To: 5}},
		{Field: FieldMargin, Kind: KindMargin, Span: Span{From: 3, To: -2}},
		{Field: FieldTime, Kind: KindTimeCode, Span: AnySpan, Last: true},
		{Field: FieldWeight, Kind: KindWeight, Span: Span{From: 3, To: 7}},
		{Field: FieldJockey, Kind: KindName, Span: Span{From: 3, To: 8}},
		{Field: FieldOdds, Kind: KindOdds, Span: Span{From: -2, To: -1}, Last: true},
	},
	Optional: []Field{FieldMargin, FieldTrainer, FieldStud},
	Leftover: ReasonSectional,
}

// DefaultTemplates returns the known layouts in selection order.
func DefaultTemplates() []Template {
	return []Template{Standard, Extended}
}
