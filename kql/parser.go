package kql

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Warning describes part of a query that Parse could not place in the
// FilterState. Warnings never stop parsing.
type Warning struct {
	Clause string `json:"clause"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

const (
	reasonUnknownField = "unknown field"
	reasonNotRange     = "field does not take a range"
	reasonBadValue     = "value not valid for field"
	reasonEmptyValue   = "empty value"
)

// comparisonPattern matches a single range comparison such as size>=100.
var comparisonPattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_.]*)\s*(>=|<=|>|<)\s*(\S.*)$`)

type comparison struct {
	Field string
	Op    string
	Value string
}

func (c comparison) lower() bool {
	return c.Op == ">=" || c.Op == ">"
}

func parseComparison(clause string) (comparison, bool) {
	m := comparisonPattern.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		return comparison{}, false
	}
	return comparison{Field: m[1], Op: m[2], Value: strings.TrimSpace(m[3])}, true
}

// Parser turns query strings into FilterState values. A Parser is not safe
// for concurrent use; create one per goroutine.
type Parser struct {
	log      zerolog.Logger
	state    FilterState
	warnings []Warning
}

func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

// Parse reads query into a new FilterState. Clauses on known fields fill
// the matching slot, clauses on unknown fields are dropped and reported,
// and anything else is kept as free text in Term.
func Parse(query string) FilterState {
	f, _ := NewParser(zerolog.Nop()).Parse(query)
	return f
}

func (p *Parser) Parse(query string) (FilterState, []Warning) {
	p.state = FilterState{}
	p.warnings = nil

	q := strings.TrimSpace(query)
	if q == "" || q == MatchAll {
		return FilterState{}, nil
	}

	for _, clause := range splitClauses(q, keywordAnd) {
		p.parseClause(clause)
	}

	state, warnings := p.state.Normalize(), p.warnings
	p.state, p.warnings = FilterState{}, nil
	return state, warnings
}

func (p *Parser) parseClause(clause string) {
	if inner, ok := unwrap(clause); ok {
		if p.parseRangePair(inner) {
			return
		}
		for _, piece := range splitClauses(inner, keywordAnd) {
			p.parseClause(piece)
		}
		return
	}

	// tags:a OR tags:b without a wrapper
	if pieces := splitClauses(clause, keywordOr); len(pieces) > 1 && allStructured(pieces) {
		for _, piece := range pieces {
			p.parseClause(piece)
		}
		return
	}

	if c, ok := parseComparison(clause); ok {
		p.applyComparison(clause, c)
		return
	}

	if field, value, ok := cutField(clause); ok {
		p.applyField(clause, field, value)
		return
	}

	p.appendTerm(clause)
}

// parseRangePair handles "a>=x AND a<=y" on a single field.
func (p *Parser) parseRangePair(inner string) bool {
	pieces := splitClauses(inner, keywordAnd)
	if len(pieces) != 2 {
		return false
	}
	first, ok := parseComparison(pieces[0])
	if !ok {
		return false
	}
	second, ok := parseComparison(pieces[1])
	if !ok {
		return false
	}
	fd, ok := LookupField(first.Field)
	if !ok || !fd.Kind.IsRange() {
		return false
	}
	if other, ok := LookupField(second.Field); !ok || other.Key != fd.Key {
		return false
	}

	p.applyComparison(pieces[0], first)
	p.applyComparison(pieces[1], second)
	return true
}

func allStructured(pieces []string) bool {
	for _, piece := range pieces {
		if _, ok := unwrap(piece); ok {
			continue
		}
		if _, ok := parseComparison(piece); ok {
			continue
		}
		if _, _, ok := cutField(piece); ok {
			continue
		}
		return false
	}
	return true
}

func (p *Parser) applyComparison(clause string, c comparison) {
	fd, ok := LookupField(c.Field)
	if !ok {
		p.warn(clause, c.Field, reasonUnknownField)
		return
	}
	if !fd.Kind.IsRange() {
		p.warn(clause, c.Field, reasonNotRange)
		return
	}

	value := UnescapeToken(trimQuotes(c.Value))
	if !p.setBound(fd, value, c.lower()) {
		p.appendTerm(clause)
	}
}

// setBound stores value as the lower or upper bound of a range field. It
// reports false when value is not valid for the field's kind.
func (p *Parser) setBound(fd *Field, value string, lower bool) bool {
	switch fd.Kind {
	case KindIntRange:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return false
		}
		r := fd.intRange(&p.state)
		if *r == nil {
			*r = &IntRange{}
		}
		if lower {
			(*r).Min = Int64(n)
		} else {
			(*r).Max = Int64(n)
		}

	case KindFloatRange:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		r := fd.floatRange(&p.state)
		if *r == nil {
			*r = &FloatRange{}
		}
		if lower {
			(*r).Min = Float64(n)
		} else {
			(*r).Max = Float64(n)
		}

	case KindDateRange:
		if value == "" {
			return false
		}
		r := fd.dateRange(&p.state)
		if *r == nil {
			*r = &DateRange{}
		}
		if lower {
			(*r).Start = NormalizeDate(value)
		} else {
			(*r).End = NormalizeDate(value)
		}

	default:
		return false
	}
	return true
}

func (p *Parser) applyField(clause, field, raw string) {
	name := strings.TrimSpace(field)
	fd, ok := LookupField(name)
	if !ok {
		p.warn(clause, name, reasonUnknownField)
		return
	}

	value := UnescapeToken(trimQuotes(strings.TrimSpace(raw)))
	if value == "" {
		p.warn(clause, name, reasonEmptyValue)
		return
	}

	switch fd.Kind {
	case KindText:
		*fd.text(&p.state) = value

	case KindType:
		kind, ok := TypeName(value)
		if !ok {
			if _, named := TypeCode(value); !named {
				p.warn(clause, name, reasonBadValue)
				return
			}
			kind = strings.ToLower(value)
		}
		*fd.text(&p.state) = kind

	case KindTags:
		dst := fd.text(&p.state)
		if *dst == "" {
			*dst = value
		} else {
			*dst += "," + value
		}

	case KindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			p.warn(clause, name, reasonBadValue)
			return
		}
		*fd.number(&p.state) = n

	default:
		// field:value on a range field is an exact match
		if !p.setBound(fd, value, true) || !p.setBound(fd, value, false) {
			p.warn(clause, name, reasonBadValue)
		}
	}
}

func (p *Parser) appendTerm(clause string) {
	if p.state.Term == "" {
		p.state.Term = clause
		return
	}
	p.state.Term += " " + clause
}

func (p *Parser) warn(clause, field, reason string) {
	p.log.Debug().
		Str("clause", clause).
		Str("field", field).
		Str("reason", reason).
		Msg("Dropping query clause")
	p.warnings = append(p.warnings, Warning{Clause: clause, Field: field, Reason: reason})
}

func trimQuotes(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
