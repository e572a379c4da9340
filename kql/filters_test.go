package kql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	f := FilterState{
		Standard: StandardFilters{
			SizeRange:     &IntRange{},
			ModifiedRange: &DateRange{Start: "2024-01-01"},
		},
		Photo: PhotoFilters{
			ISORange:     &IntRange{Min: Int64(100)},
			FNumberRange: &FloatRange{},
			Orientation:  -3,
		},
	}

	n := f.Normalize()
	assert.Nil(t, n.Standard.SizeRange)
	assert.Nil(t, n.Photo.FNumberRange)
	assert.Equal(t, 0, n.Photo.Orientation)
	require.NotNil(t, n.Standard.ModifiedRange)
	assert.Equal(t, "2024-01-01", n.Standard.ModifiedRange.Start)

	// the copy shares no pointers with the input
	require.NotNil(t, n.Photo.ISORange)
	*n.Photo.ISORange.Min = 200
	assert.Equal(t, int64(100), *f.Photo.ISORange.Min)
	n.Standard.ModifiedRange.End = "2025-01-01"
	assert.Empty(t, f.Standard.ModifiedRange.End)
}

func TestIsEmpty(t *testing.T) {
	testCases := []struct {
		name  string
		f     FilterState
		empty bool
	}{
		{"zero", FilterState{}, true},
		{"empty ranges", FilterState{Standard: StandardFilters{SizeRange: &IntRange{}}, Photo: PhotoFilters{TakenDateRange: &DateRange{}}}, true},
		{"negative orientation", FilterState{Photo: PhotoFilters{Orientation: -1}}, true},
		{"term", FilterState{Term: "x"}, false},
		{"one bound", FilterState{Photo: PhotoFilters{FocalLengthRange: &FloatRange{Max: Float64(50)}}}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.IsEmpty(); got != tc.empty {
				t.Errorf("Expected %v, got %v", tc.empty, got)
			}
		})
	}
}
