package kql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerialize(t *testing.T) {
	testCases := []struct {
		name     string
		filters  FilterState
		expected string
	}{
		{
			name:     "empty",
			filters:  FilterState{},
			expected: "*",
		},
		{
			name:     "empty ranges are ignored",
			filters:  FilterState{Standard: StandardFilters{SizeRange: &IntRange{}, ModifiedRange: &DateRange{}}},
			expected: "*",
		},
		{
			name:     "free text is wrapped as a name wildcard",
			filters:  FilterState{Term: "banana smoothie"},
			expected: `name:*banana\ smoothie*`,
		},
		{
			name:     "free text with a field passes through",
			filters:  FilterState{Term: "mediatype:pdf OR name:x"},
			expected: "mediatype:pdf OR name:x",
		},
		{
			name:     "folder type",
			filters:  FilterState{Standard: StandardFilters{Type: TypeFolder}},
			expected: "Type:2",
		},
		{
			name:     "file type",
			filters:  FilterState{Standard: StandardFilters{Type: TypeFile}},
			expected: "Type:1",
		},
		{
			name:     "unknown type is dropped",
			filters:  FilterState{Standard: StandardFilters{Type: "symlink"}},
			expected: "*",
		},
		{
			name:     "size range with both bounds",
			filters:  FilterState{Standard: StandardFilters{SizeRange: &IntRange{Min: Int64(100), Max: Int64(1000)}}},
			expected: "(size>=100 AND size<=1000)",
		},
		{
			name:     "size range lower bound",
			filters:  FilterState{Standard: StandardFilters{SizeRange: &IntRange{Min: Int64(100)}}},
			expected: "size>=100",
		},
		{
			name:     "modified range upper bound is normalized",
			filters:  FilterState{Standard: StandardFilters{ModifiedRange: &DateRange{End: "2024/02/29"}}},
			expected: "mtime<=2024-02-29",
		},
		{
			name:     "date bound that is not a date is escaped",
			filters:  FilterState{Standard: StandardFilters{ModifiedRange: &DateRange{Start: "before AND after"}}},
			expected: `mtime>=before\ AND\ after`,
		},
		{
			name:     "tags",
			filters:  FilterState{Standard: StandardFilters{Tags: "a, b"}},
			expected: "(tags:a OR tags:b)",
		},
		{
			name:     "single tag",
			filters:  FilterState{Standard: StandardFilters{Tags: " holiday ,, "}},
			expected: "tags:holiday",
		},
		{
			name:     "media type glob",
			filters:  FilterState{Standard: StandardFilters{MediaType: "image/*"}},
			expected: `mediatype:image\/*`,
		},
		{
			name: "photo fields",
			filters: FilterState{Photo: PhotoFilters{
				CameraMake:       "Canon",
				CameraModel:      "EOS 5D",
				ISORange:         &IntRange{Min: Int64(100), Max: Int64(800)},
				FNumberRange:     &FloatRange{Max: Float64(2.8)},
				FocalLengthRange: &FloatRange{Min: Float64(35), Max: Float64(85.5)},
				TakenDateRange:   &DateRange{Start: "2023-06-01"},
				Orientation:      6,
			}},
			expected: `photo.cameramake:Canon AND photo.cameramodel:EOS\ 5D AND photo.takendatetime>=2023-06-01 AND (photo.iso>=100 AND photo.iso<=800) AND photo.fnumber<=2.8 AND (photo.focallength>=35 AND photo.focallength<=85.5) AND photo.orientation:6`,
		},
		{
			name: "clause order follows the field table",
			filters: FilterState{
				Term:     "report",
				Standard: StandardFilters{Content: "budget", Name: "*.pdf", Type: TypeFile},
			},
			expected: "name:*report* AND name:*.pdf AND Type:1 AND content:budget",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Serialize(tc.filters))
		})
	}
}

func TestSerializeDoesNotModifyInput(t *testing.T) {
	f := FilterState{Standard: StandardFilters{SizeRange: &IntRange{}}}
	Serialize(f)
	assert.NotNil(t, f.Standard.SizeRange)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitTags("a, b"))
	assert.Equal(t, []string{"x y"}, SplitTags(" x y ,"))
	assert.Nil(t, SplitTags(" , "))
}
