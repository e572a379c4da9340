package advsearch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-mmap/mmap"
	"golang.org/x/exp/maps"
)

// The memory file consists of a header followed by a series of records.
// Each record is:
// uint64 - total length of record, including these two words
// uint64 - ID, or deletedRecordMarker for free space
// payload
//
// Free space always starts with a deleted record header, so the record
// area can be walked from the header to the first zero length.

const (
	deletedRecordMarker = 0xffffffffffffffff
	recordHeaderSize    = 16
	minGrowthBytes      = 4096
)

var errRecordNotFound = errors.New("record not found")

type memfile struct {
	*mmap.File
	sync.Mutex

	headerSize int64

	// offsets of each record id into the file
	idOffsets map[uint64]int64

	// free ranges, relative to the end of the header
	freemap freeMap

	name string
}

// openMemFile maps name, creating it when it does not exist, and rebuilds
// the id index and free map by walking the records.
func openMemFile(name string, headerSize int64) (*memfile, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	f.Close()

	mm, err := mmap.OpenFile(name, mmap.Read|mmap.Write)
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", name, err)
	}

	mf := &memfile{
		File:       mm,
		idOffsets:  make(map[uint64]int64),
		headerSize: headerSize,
		name:       name,
	}
	if err := mf.ensureLength(headerSize); err != nil {
		mf.File.Close()
		return nil, err
	}
	if err := mf.scan(); err != nil {
		mf.File.Close()
		return nil, err
	}
	return mf, nil
}

// scan walks the records after the header.
func (mf *memfile) scan() error {
	end := int64(mf.File.Len())
	offset := mf.headerSize
	for offset+recordHeaderSize <= end {
		length := mf.readUint64(offset)
		if length == 0 {
			break
		}
		if length < recordHeaderSize || offset+int64(length) > end {
			return fmt.Errorf("%s: corrupt record at offset %d (length %d)", mf.name, offset, length)
		}
		id := mf.readUint64(offset + 8)
		if id == deletedRecordMarker {
			mf.freemap.markFree(offset-mf.headerSize, int64(length))
		} else {
			mf.idOffsets[id] = offset
		}
		offset += int64(length)
	}
	mf.freemap.markFree(offset-mf.headerSize, end-offset)
	return nil
}

// ensureLength checks if the file is at least the given length, and if not,
// extends it and remaps the file.
func (mf *memfile) ensureLength(length int64) error {
	curSize := int64(mf.File.Len())
	if curSize >= length {
		return nil
	}

	length += minGrowthBytes

	if err := mf.File.Close(); err != nil {
		return err
	}

	file, err := os.OpenFile(mf.name, os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	err = file.Truncate(length)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to grow %s: %w", mf.name, err)
	}

	if curSize > mf.headerSize {
		mf.freemap.markFree(curSize-mf.headerSize, length-curSize)
	} else {
		mf.freemap.markFree(0, length-mf.headerSize)
	}

	mf.File, err = mmap.OpenFile(mf.name, mmap.Read|mmap.Write)
	if err != nil {
		return fmt.Errorf("failed to remap %s: %w", mf.name, err)
	}
	return nil
}

// addRecord writes data under id. An existing record with the same id is
// replaced.
func (mf *memfile) addRecord(id uint64, data []byte) error {
	if id == deletedRecordMarker {
		return fmt.Errorf("invalid record id %d", id)
	}

	mf.Lock()
	defer mf.Unlock()

	recordLength := int64(recordHeaderSize + len(data))

	start, remaining, err := mf.freemap.getFreeRange(recordLength)
	if err != nil {
		if err := mf.ensureLength(int64(mf.File.Len()) + recordLength); err != nil {
			return err
		}
		start, remaining, err = mf.freemap.getFreeRange(recordLength)
		if err != nil {
			return fmt.Errorf("failed to allocate space for record %d: %w", id, err)
		}
	}

	offset := start + mf.headerSize

	// A tail too small for a header is absorbed into the record. It may
	// still hold bytes of a freed record, so it is zeroed.
	if remaining > 0 && remaining < recordHeaderSize {
		mf.freemap.markUsed(start+recordLength, remaining)
		if _, err := mf.WriteAt(make([]byte, remaining), offset+recordLength); err != nil {
			return err
		}
		recordLength += remaining
		remaining = 0
	}

	if remaining > 0 {
		mf.writeUint64(offset+recordLength, uint64(remaining))
		mf.writeUint64(offset+recordLength+8, deletedRecordMarker)
	}

	mf.writeUint64(offset, uint64(recordLength))
	mf.writeUint64(offset+8, id)
	if _, err := mf.WriteAt(data, offset+recordHeaderSize); err != nil {
		return err
	}

	if oldOffset, exists := mf.idOffsets[id]; exists {
		mf.freeRecord(oldOffset)
	}
	mf.idOffsets[id] = offset

	return mf.File.Sync()
}

// readRecord returns the payload stored under id. Records may be padded, so
// the payload format must tolerate trailing zero bytes.
func (mf *memfile) readRecord(id uint64) ([]byte, error) {
	mf.Lock()
	defer mf.Unlock()

	offset, exists := mf.idOffsets[id]
	if !exists {
		return nil, errRecordNotFound
	}

	recordLength := mf.readUint64(offset)
	data := make([]byte, recordLength-recordHeaderSize)
	if _, err := mf.ReadAt(data, offset+recordHeaderSize); err != nil {
		return nil, err
	}
	return data, nil
}

// deleteRecord marks a record as deleted and frees its space.
func (mf *memfile) deleteRecord(id uint64) error {
	mf.Lock()
	defer mf.Unlock()

	offset, exists := mf.idOffsets[id]
	if !exists {
		return errRecordNotFound
	}
	mf.freeRecord(offset)
	delete(mf.idOffsets, id)
	return mf.File.Sync()
}

func (mf *memfile) freeRecord(offset int64) {
	mf.writeUint64(offset+8, deletedRecordMarker)
	mf.freemap.markFree(offset-mf.headerSize, int64(mf.readUint64(offset)))
}

// ids returns the ids of all live records, in no particular order.
func (mf *memfile) ids() []uint64 {
	mf.Lock()
	defer mf.Unlock()

	return maps.Keys(mf.idOffsets)
}

func (mf *memfile) readUint64(offset int64) uint64 {
	buf := make([]byte, 8)
	mf.ReadAt(buf, offset)
	return binary.LittleEndian.Uint64(buf)
}

func (mf *memfile) writeUint64(offset int64, value uint64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	mf.WriteAt(buf, offset)
}

func (mf *memfile) readUint32(offset int64) uint32 {
	buf := make([]byte, 4)
	mf.ReadAt(buf, offset)
	return binary.LittleEndian.Uint32(buf)
}

func (mf *memfile) writeUint32(offset int64, value uint32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	mf.WriteAt(buf, offset)
}

func (mf *memfile) close() error {
	mf.Lock()
	defer mf.Unlock()
	if err := mf.File.Sync(); err != nil {
		mf.File.Close()
		return err
	}
	return mf.File.Close()
}
