package kql

import (
	"strconv"
	"strings"
)

// MatchAll is the query that matches every resource.
const MatchAll = "*"

// Serialize builds the query string for f. It never fails: a value that
// cannot be expressed is left out.
func Serialize(f FilterState) string {
	f = f.Normalize()

	var clauses []string
	if term := strings.TrimSpace(f.Term); term != "" {
		if strings.Contains(term, ":") {
			clauses = append(clauses, term)
		} else {
			clauses = append(clauses, "name:*"+EscapeToken(term)+"*")
		}
	}

	for i := range Fields {
		if clause := Fields[i].serialize(&f); clause != "" {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) == 0 {
		return MatchAll
	}
	return strings.Join(clauses, " "+keywordAnd+" ")
}

// serialize returns the clause for this field, or "" when f leaves the
// field unset.
func (fd *Field) serialize(f *FilterState) string {
	switch fd.Kind {
	case KindText:
		v := strings.TrimSpace(*fd.text(f))
		if v == "" {
			return ""
		}
		return fd.Index + ":" + EscapeToken(v)

	case KindType:
		code, ok := TypeCode(strings.TrimSpace(*fd.text(f)))
		if !ok {
			return ""
		}
		return fd.Index + ":" + code

	case KindTags:
		tags := SplitTags(*fd.text(f))
		switch len(tags) {
		case 0:
			return ""
		case 1:
			return fd.Index + ":" + EscapeToken(tags[0])
		}
		parts := make([]string, len(tags))
		for i, tag := range tags {
			parts[i] = fd.Index + ":" + EscapeToken(tag)
		}
		return "(" + strings.Join(parts, " "+keywordOr+" ") + ")"

	case KindInt:
		v := *fd.number(f)
		if v <= 0 {
			return ""
		}
		return fd.Index + ":" + strconv.Itoa(v)

	case KindIntRange:
		r := *fd.intRange(f)
		if r.empty() {
			return ""
		}
		return rangeClause(fd.Index, formatInt(r.Min), formatInt(r.Max))

	case KindFloatRange:
		r := *fd.floatRange(f)
		if r.empty() {
			return ""
		}
		return rangeClause(fd.Index, formatFloat(r.Min), formatFloat(r.Max))

	case KindDateRange:
		r := *fd.dateRange(f)
		if r.empty() {
			return ""
		}
		return rangeClause(fd.Index, formatDate(r.Start), formatDate(r.End))
	}
	return ""
}

// rangeClause writes one comparison for a single bound, or a parenthesized
// pair when both bounds are present.
func rangeClause(field, lo, hi string) string {
	switch {
	case lo != "" && hi != "":
		return "(" + field + ">=" + lo + " " + keywordAnd + " " + field + "<=" + hi + ")"
	case lo != "":
		return field + ">=" + lo
	case hi != "":
		return field + "<=" + hi
	}
	return ""
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatDate(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if n := NormalizeDate(v); isISODate(n) {
		return n
	}
	return EscapeToken(v)
}

// SplitTags splits a comma-joined tag list, trimming each tag and dropping
// empty ones.
func SplitTags(tags string) []string {
	var out []string
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
