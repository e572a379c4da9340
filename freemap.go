package advsearch

import (
	"errors"
	"sort"
)

var errNoFreeSpace = errors.New("no sufficient free space available")

// freeMap tracks unused byte ranges of the record area, sorted by start.
type freeMap struct {
	freeSpaces []space
}

type space struct {
	start  int64
	length int64
}

// markFree marks a range of space as free, merging it with its neighbours.
func (fm *freeMap) markFree(start, length int64) {
	if length <= 0 {
		return
	}

	fm.freeSpaces = append(fm.freeSpaces, space{start, length})
	sort.Slice(fm.freeSpaces, func(i, j int) bool {
		return fm.freeSpaces[i].start < fm.freeSpaces[j].start
	})

	merged := fm.freeSpaces[:0]
	for _, s := range fm.freeSpaces {
		if n := len(merged); n > 0 && merged[n-1].start+merged[n-1].length >= s.start {
			if end := s.start + s.length; end > merged[n-1].start+merged[n-1].length {
				merged[n-1].length = end - merged[n-1].start
			}
			continue
		}
		merged = append(merged, s)
	}
	fm.freeSpaces = merged
}

// markUsed removes a range from the free list. Used while rescanning a file,
// where every existing record claims its space.
func (fm *freeMap) markUsed(start, length int64) {
	if length <= 0 {
		return
	}

	for i, s := range fm.freeSpaces {
		if s.start > start || start+length > s.start+s.length {
			continue
		}
		switch {
		case start == s.start:
			fm.freeSpaces[i].start += length
			fm.freeSpaces[i].length -= length
		case start+length == s.start+s.length:
			fm.freeSpaces[i].length -= length
		default:
			// split
			tail := space{start: start + length, length: s.start + s.length - (start + length)}
			fm.freeSpaces[i].length = start - s.start
			fm.freeSpaces = append(fm.freeSpaces, space{})
			copy(fm.freeSpaces[i+2:], fm.freeSpaces[i+1:])
			fm.freeSpaces[i+1] = tail
		}
		if fm.freeSpaces[i].length == 0 {
			fm.freeSpaces = append(fm.freeSpaces[:i], fm.freeSpaces[i+1:]...)
		}
		return
	}
}

// getFreeRange finds the first free range of at least length bytes and
// marks it as used. It returns the start and how much of the chosen range
// is left over.
func (fm *freeMap) getFreeRange(length int64) (start, remaining int64, err error) {
	if length <= 0 {
		return 0, 0, errors.New("length must be positive")
	}

	for i, s := range fm.freeSpaces {
		if s.length < length {
			continue
		}
		fm.freeSpaces[i].start += length
		fm.freeSpaces[i].length -= length
		if fm.freeSpaces[i].length == 0 {
			fm.freeSpaces = append(fm.freeSpaces[:i], fm.freeSpaces[i+1:]...)
		}
		return s.start, s.length - length, nil
	}
	return 0, 0, errNoFreeSpace
}

// total returns the number of free bytes.
func (fm *freeMap) total() int64 {
	var n int64
	for _, s := range fm.freeSpaces {
		n += s.length
	}
	return n
}
