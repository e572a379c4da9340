package kql

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Kind says how a field's value is stored in FilterState and written in a
// query string.
type Kind int

const (
	KindText Kind = iota
	KindType
	KindTags
	KindInt
	KindIntRange
	KindFloatRange
	KindDateRange
)

var kindNames = map[Kind]string{
	KindText:       "text",
	KindType:       "type",
	KindTags:       "tags",
	KindInt:        "int",
	KindIntRange:   "intRange",
	KindFloatRange: "floatRange",
	KindDateRange:  "dateRange",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsRange reports whether clauses for this kind use comparison operators.
func (k Kind) IsRange() bool {
	return k == KindIntRange || k == KindFloatRange || k == KindDateRange
}

// Field is one row of the mapping between the FilterState vocabulary and the
// index vocabulary. Exactly one accessor is set, matching Kind.
type Field struct {
	Key     string   `json:"key"`
	Index   string   `json:"index"`
	Kind    Kind     `json:"kind"`
	Aliases []string `json:"aliases,omitempty"`

	text       func(*FilterState) *string
	number     func(*FilterState) *int
	intRange   func(*FilterState) **IntRange
	floatRange func(*FilterState) **FloatRange
	dateRange  func(*FilterState) **DateRange
}

// Fields is the single table read by both Serialize and Parse. The order
// of the rows is the order of clauses in a serialized query.
var Fields = []Field{
	{Key: "standard.name", Index: "name", Kind: KindText,
		text: func(f *FilterState) *string { return &f.Standard.Name }},
	{Key: "standard.type", Index: "Type", Kind: KindType,
		text: func(f *FilterState) *string { return &f.Standard.Type }},
	{Key: "standard.mediaType", Index: "mediatype", Kind: KindText,
		text: func(f *FilterState) *string { return &f.Standard.MediaType }},
	{Key: "standard.sizeRange", Index: "size", Kind: KindIntRange,
		intRange: func(f *FilterState) **IntRange { return &f.Standard.SizeRange }},
	{Key: "standard.modifiedRange", Index: "mtime", Kind: KindDateRange,
		dateRange: func(f *FilterState) **DateRange { return &f.Standard.ModifiedRange }},
	{Key: "standard.tags", Index: "tags", Kind: KindTags, Aliases: []string{"tag"},
		text: func(f *FilterState) *string { return &f.Standard.Tags }},
	{Key: "standard.content", Index: "content", Kind: KindText,
		text: func(f *FilterState) *string { return &f.Standard.Content }},
	{Key: "photo.cameraMake", Index: "photo.cameramake", Kind: KindText,
		text: func(f *FilterState) *string { return &f.Photo.CameraMake }},
	{Key: "photo.cameraModel", Index: "photo.cameramodel", Kind: KindText,
		text: func(f *FilterState) *string { return &f.Photo.CameraModel }},
	{Key: "photo.takenDateRange", Index: "photo.takendatetime", Kind: KindDateRange,
		dateRange: func(f *FilterState) **DateRange { return &f.Photo.TakenDateRange }},
	{Key: "photo.isoRange", Index: "photo.iso", Kind: KindIntRange,
		intRange: func(f *FilterState) **IntRange { return &f.Photo.ISORange }},
	{Key: "photo.fNumberRange", Index: "photo.fnumber", Kind: KindFloatRange,
		floatRange: func(f *FilterState) **FloatRange { return &f.Photo.FNumberRange }},
	{Key: "photo.focalLengthRange", Index: "photo.focallength", Kind: KindFloatRange,
		floatRange: func(f *FilterState) **FloatRange { return &f.Photo.FocalLengthRange }},
	{Key: "photo.orientation", Index: "photo.orientation", Kind: KindInt,
		number: func(f *FilterState) *int { return &f.Photo.Orientation }},
}

// typeCodes is the backend's numeric encoding of resource kinds.
var typeCodes = map[string]string{
	TypeFile:   "1",
	TypeFolder: "2",
}

var (
	typeNames   map[string]string
	fieldLookup map[string]*Field
)

func init() {
	typeNames = make(map[string]string, len(typeCodes))
	for name, code := range typeCodes {
		typeNames[code] = name
	}

	fieldLookup = make(map[string]*Field)
	for i := range Fields {
		f := &Fields[i]
		for _, name := range f.names() {
			if _, exists := fieldLookup[name]; !exists {
				fieldLookup[name] = f
			}
		}
	}
}

// names returns every lower-cased name under which the parser accepts f.
func (f *Field) names() []string {
	names := []string{strings.ToLower(f.Index), strings.ToLower(f.Key)}
	for _, alias := range f.Aliases {
		names = append(names, strings.ToLower(alias))
	}
	return names
}

// LookupField resolves an incoming field name, ignoring case. Index names,
// aliases and FilterState keys are all accepted.
func LookupField(name string) (*Field, bool) {
	f, ok := fieldLookup[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// TypeCode returns the index code for a resource kind.
func TypeCode(kind string) (string, bool) {
	code, ok := typeCodes[strings.ToLower(kind)]
	return code, ok
}

// TypeName returns the resource kind for an index code.
func TypeName(code string) (string, bool) {
	name, ok := typeNames[strings.TrimSpace(code)]
	return name, ok
}

// CheckTable verifies that the table can be read in both directions: every
// name resolves back to the row that declares it, every row has the accessor
// its kind needs, and the type codes are a bijection.
func CheckTable() error {
	seen := make(map[string]string)
	for i := range Fields {
		f := &Fields[i]
		if f.Index == "" || f.Key == "" {
			return fmt.Errorf("field %d: empty key or index name", i)
		}
		if !f.hasAccessor() {
			return fmt.Errorf("field %s: no accessor for kind %s", f.Key, f.Kind)
		}
		for _, name := range f.names() {
			if owner, dup := seen[name]; dup && owner != f.Key {
				return fmt.Errorf("field name %q used by both %s and %s", name, owner, f.Key)
			}
			seen[name] = f.Key
			if got, ok := LookupField(name); !ok || got.Key != f.Key {
				return fmt.Errorf("field name %q does not resolve to %s", name, f.Key)
			}
		}
	}

	if len(typeNames) != len(typeCodes) {
		return fmt.Errorf("type codes are not unique")
	}
	kinds := maps.Keys(typeCodes)
	slices.Sort(kinds)
	for _, kind := range kinds {
		code := typeCodes[kind]
		if back, ok := TypeName(code); !ok || back != kind {
			return fmt.Errorf("type code %s does not map back to %s", code, kind)
		}
	}
	return nil
}

func (f *Field) hasAccessor() bool {
	switch f.Kind {
	case KindText, KindType, KindTags:
		return f.text != nil
	case KindInt:
		return f.number != nil
	case KindIntRange:
		return f.intRange != nil
	case KindFloatRange:
		return f.floatRange != nil
	case KindDateRange:
		return f.dateRange != nil
	}
	return false
}
