package kql

// FilterState is the structured form of an advanced search. It is a plain
// value: Serialize reads it and Parse returns a fresh one.
type FilterState struct {
	Term     string          `json:"term"`
	Standard StandardFilters `json:"standard"`
	Photo    PhotoFilters    `json:"photo"`
}

// StandardFilters holds the filters that apply to every resource.
type StandardFilters struct {
	Name          string     `json:"name,omitempty"`
	Type          string     `json:"type,omitempty"`
	MediaType     string     `json:"mediaType,omitempty"`
	SizeRange     *IntRange  `json:"sizeRange,omitempty"`
	ModifiedRange *DateRange `json:"modifiedRange,omitempty"`
	Tags          string     `json:"tags,omitempty"`
	Content       string     `json:"content,omitempty"`
}

// PhotoFilters holds the EXIF filters.
type PhotoFilters struct {
	CameraMake       string      `json:"cameraMake,omitempty"`
	CameraModel      string      `json:"cameraModel,omitempty"`
	TakenDateRange   *DateRange  `json:"takenDateRange,omitempty"`
	ISORange         *IntRange   `json:"isoRange,omitempty"`
	FNumberRange     *FloatRange `json:"fNumberRange,omitempty"`
	FocalLengthRange *FloatRange `json:"focalLengthRange,omitempty"`
	Orientation      int         `json:"orientation,omitempty"`
}

// Resource kinds accepted in StandardFilters.Type.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

type IntRange struct {
	Min *int64 `json:"min,omitempty"`
	Max *int64 `json:"max,omitempty"`
}

type FloatRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// DateRange bounds are YYYY-MM-DD strings; an empty string is an absent bound.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (r *IntRange) empty() bool   { return r == nil || (r.Min == nil && r.Max == nil) }
func (r *FloatRange) empty() bool { return r == nil || (r.Min == nil && r.Max == nil) }
func (r *DateRange) empty() bool  { return r == nil || (r.Start == "" && r.End == "") }

// Int64 and Float64 return pointers for building ranges in literals.
func Int64(v int64) *int64       { return &v }
func Float64(v float64) *float64 { return &v }

// Normalize returns a copy of f in which every range with no bound set is
// nil. Range structs are copied so the result shares no pointers with f.
func (f FilterState) Normalize() FilterState {
	out := f
	out.Standard.SizeRange = normalizeIntRange(f.Standard.SizeRange)
	out.Standard.ModifiedRange = normalizeDateRange(f.Standard.ModifiedRange)
	out.Photo.TakenDateRange = normalizeDateRange(f.Photo.TakenDateRange)
	out.Photo.ISORange = normalizeIntRange(f.Photo.ISORange)
	out.Photo.FNumberRange = normalizeFloatRange(f.Photo.FNumberRange)
	out.Photo.FocalLengthRange = normalizeFloatRange(f.Photo.FocalLengthRange)
	if out.Photo.Orientation < 0 {
		out.Photo.Orientation = 0
	}
	return out
}

// IsEmpty reports whether f constrains nothing.
func (f FilterState) IsEmpty() bool {
	return f.Normalize() == FilterState{}
}

func normalizeIntRange(r *IntRange) *IntRange {
	if r.empty() {
		return nil
	}
	c := &IntRange{}
	if r.Min != nil {
		c.Min = Int64(*r.Min)
	}
	if r.Max != nil {
		c.Max = Int64(*r.Max)
	}
	return c
}

func normalizeFloatRange(r *FloatRange) *FloatRange {
	if r.empty() {
		return nil
	}
	c := &FloatRange{}
	if r.Min != nil {
		c.Min = Float64(*r.Min)
	}
	if r.Max != nil {
		c.Max = Float64(*r.Max)
	}
	return c
}

func normalizeDateRange(r *DateRange) *DateRange {
	if r.empty() {
		return nil
	}
	c := *r
	return &c
}
