// Package normalize maps variable-width result table rows onto the fixed
// 12-field canonical record.
//
// A row is first tagged cell by cell with an ordered classifier list, then
// resolved against the template selected by its width: fixed slots claim
// their columns, content claims pick the remaining cells by tag, and every
// field left over carries the unavailable marker.
package normalize

import (
	"errors"
	"fmt"
	"strings"

	"hipica/internal/util"
)

// ErrShapeMismatch is matched by every *ShapeMismatchError.
var ErrShapeMismatch = errors.New("ratio/shape mismatch")

// ShapeMismatchError reports a row whose width fits no template.
type ShapeMismatchError struct {
	Width int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("ratio/shape mismatch: row width %d matches no template", e.Width)
}

func (e *ShapeMismatchError) Is(target error) bool { return target == ErrShapeMismatch }

// Reason explains why a source cell was not, or only partly, used.
type Reason string

const (
	ReasonBlank       Reason = "blank"
	ReasonRedundant   Reason = "redundant"
	ReasonSectional   Reason = "sectional"
	ReasonUnclaimed   Reason = "unclaimed"
	ReasonUnparseable Reason = "unparseable"
	ReasonSire        Reason = "sire suffix split off"
)

// Source records what happened to one raw cell.
type Source struct {
	Index    int
	Raw      string
	Kind     Kind
	Field    Field
	Assigned bool
	Reason   Reason
}

// Attributed reports whether the cell landed in a field or was discarded
// with a reason.
func (s Source) Attributed() bool { return s.Assigned || s.Reason != "" }

// UnresolvedFieldWarning flags a required field left unavailable.
type UnresolvedFieldWarning struct {
	Field  Field
	Reason string
}

func (w UnresolvedFieldWarning) String() string {
	return fmt.Sprintf("%s unresolved: %s", w.Field, w.Reason)
}

// Result is the outcome of normalizing one row.
type Result struct {
	Record Record
	// Sire is the "(Sire)" suffix split off the name cell, if any.
	Sire     string
	Template string
	Sources  []Source
	Warnings []UnresolvedFieldWarning
}

type Normalizer struct {
	rules      []Rule
	templates  []Template
	precedence map[string]Precedence
}

type Option func(*Normalizer)

func WithRules(rules []Rule) Option {
	return func(n *Normalizer) { n.rules = rules }
}

func WithTemplates(templates ...Template) Option {
	return func(n *Normalizer) { n.templates = templates }
}

// WithPrecedence overrides template precedence for one venue code.
func WithPrecedence(venue string, p Precedence) Option {
	return func(n *Normalizer) { n.precedence[strings.ToUpper(venue)] = p }
}

func WithPrecedenceMap(m map[string]Precedence) Option {
	return func(n *Normalizer) {
		for venue, p := range m {
			n.precedence[strings.ToUpper(venue)] = p
		}
	}
}

func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		rules:      DefaultRules,
		templates:  DefaultTemplates(),
		precedence: map[string]Precedence{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

var defaultNormalizer = New()

// Normalize maps row with the default tables and no venue overrides.
func Normalize(row []string) (Result, error) {
	return defaultNormalizer.Normalize("", row)
}

// Template returns the template selected for width.
func (n *Normalizer) Template(width int) (Template, bool) {
	for _, t := range n.templates {
		if t.fits(width) {
			return t, true
		}
	}
	return Template{}, false
}

// Normalize maps one raw row for venue. It is a pure function of its
// arguments and the normalizer's tables.
func (n *Normalizer) Normalize(venue string, row []string) (Result, error) {
	width := len(row)
	tpl, ok := n.Template(width)
	if !ok {
		return Result{}, &ShapeMismatchError{Width: width}
	}
	precedence := tpl.Precedence
	if p, ok := n.precedence[strings.ToUpper(strings.TrimSpace(venue))]; ok {
		precedence = p
	}

	r := resolver{
		cells:   make([]string, width),
		sources: make([]Source, width),
		claimed: make([]bool, width),
	}
	for i, raw := range row {
		cell := util.NormalizeSpaces(raw)
		r.cells[i] = cell
		r.sources[i] = Source{Index: i, Raw: raw, Kind: classify(n.rules, cell)}
	}

	for _, slot := range tpl.Fixed {
		idx := resolveIndex(slot.Index, width)
		if idx < 0 || idx >= width || r.claimed[idx] {
			continue
		}
		kind := r.sources[idx].Kind
		if kind == KindEmpty {
			r.discard(idx, ReasonBlank)
			continue
		}
		if precedence == ContentFirst && !slot.accepts(kind) {
			continue
		}
		r.assign(idx, slot.Field)
	}

	for _, claim := range tpl.Claims {
		if r.record.values[claim.Field].ok {
			continue
		}
		from, to := claim.Span.bounds(width)
		if from < 0 {
			from = 0
		}
		pick := -1
		for i := from; i <= to && i < width; i++ {
			if r.claimed[i] || r.sources[i].Kind != claim.Kind {
				continue
			}
			if !claim.Last {
				pick = i
				break
			}
			if pick >= 0 {
				r.discard(pick, ReasonRedundant)
			}
			pick = i
		}
		if pick >= 0 {
			r.assign(pick, claim.Field)
		}
	}

	for i := range r.cells {
		if r.claimed[i] {
			continue
		}
		if r.sources[i].Kind == KindEmpty {
			r.discard(i, ReasonBlank)
		} else {
			r.discard(i, tpl.Leftover)
		}
	}

	var warnings []UnresolvedFieldWarning
	for _, f := range Fields() {
		if r.record.values[f].ok || tpl.optional(f) {
			continue
		}
		reason := "no matching cell"
		if why, ok := r.failed[f]; ok {
			reason = why
		}
		warnings = append(warnings, UnresolvedFieldWarning{Field: f, Reason: reason})
	}

	return Result{
		Record:   r.record,
		Sire:     r.sire,
		Template: tpl.Name,
		Sources:  r.sources,
		Warnings: warnings,
	}, nil
}

type resolver struct {
	cells   []string
	sources []Source
	claimed []bool
	record  Record
	sire    string
	failed  map[Field]string
}

func (r *resolver) discard(idx int, reason Reason) {
	r.claimed[idx] = true
	r.sources[idx].Reason = reason
}

func (r *resolver) assign(idx int, f Field) {
	r.claimed[idx] = true
	cell := r.cells[idx]
	if f == FieldName {
		if name, sire, found := strings.Cut(cell, "("); found {
			cell = strings.TrimSpace(name)
			r.sire = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sire), ")"))
			r.sources[idx].Reason = ReasonSire
		}
	}
	v, ok := coerce(f, cell)
	if !ok {
		r.sources[idx].Reason = ReasonUnparseable
		if r.failed == nil {
			r.failed = map[Field]string{}
		}
		r.failed[f] = fmt.Sprintf("cell %d %q is not a %s", idx, cell, shapeName(f.Shape()))
		return
	}
	r.record.values[f] = v
	r.sources[idx].Field = f
	r.sources[idx].Assigned = true
}

func shapeName(s Shape) string {
	switch s {
	case ShapeInteger:
		return "integer"
	case ShapeDecimal:
		return "decimal"
	case ShapeTimeCode:
		return "time-code"
	default:
		return "text"
	}
}
