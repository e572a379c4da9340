package advsearch

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestMemfile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "testfile")

	mf, err := openMemFile(fileName, 8)
	if err != nil {
		t.Fatalf("Failed to create memfile: %v", err)
	}
	defer mf.close()

	data := []byte("testdata")
	if err := mf.addRecord(1, data); err != nil {
		t.Fatalf("Failed to add record: %v", err)
	}

	readData, err := mf.readRecord(1)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	if !bytes.Equal(data, readData) {
		t.Errorf("Expected %v, got %v", data, readData)
	}

	// header area is untouched by records
	mf.writeUint64(0, 123456789)
	if v := mf.readUint64(0); v != 123456789 {
		t.Errorf("Expected %d, got %d", 123456789, v)
	}

	if err := mf.deleteRecord(1); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}
	if _, err := mf.readRecord(1); err != errRecordNotFound {
		t.Errorf("Expected errRecordNotFound when reading deleted record, got %v", err)
	}
	if err := mf.deleteRecord(1); err != errRecordNotFound {
		t.Errorf("Expected errRecordNotFound when deleting twice, got %v", err)
	}
}

func TestMemfileReplace(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "testfile_replace")

	mf, err := openMemFile(fileName, 8)
	if err != nil {
		t.Fatalf("Failed to create memfile: %v", err)
	}
	defer mf.close()

	mf.addRecord(7, []byte("first version"))
	mf.addRecord(7, []byte("second"))

	got, err := mf.readRecord(7)
	if err != nil {
		t.Fatalf("Failed to read record: %v", err)
	}
	if !bytes.HasPrefix(got, []byte("second")) {
		t.Errorf("Expected second version, got %q", got)
	}
	if len(mf.ids()) != 1 {
		t.Errorf("Expected 1 record, got %d", len(mf.ids()))
	}
}

func TestMemfileReusedSlotIsZeroed(t *testing.T) {
	for pad := 1; pad < recordHeaderSize; pad++ {
		fileName := filepath.Join(t.TempDir(), "testfile_reuse")
		mf, err := openMemFile(fileName, 8)
		if err != nil {
			t.Fatalf("Failed to create memfile: %v", err)
		}

		mf.addRecord(1, bytes.Repeat([]byte{0xff}, 40))
		mf.addRecord(2, []byte("neighbour"))
		mf.deleteRecord(1)

		// lands in the freed slot with pad bytes to spare
		data := bytes.Repeat([]byte{'b'}, 40-pad)
		if err := mf.addRecord(3, data); err != nil {
			t.Fatalf("pad %d: failed to add record: %v", pad, err)
		}
		got, err := mf.readRecord(3)
		if err != nil {
			t.Fatalf("pad %d: failed to read record: %v", pad, err)
		}
		if !bytes.HasPrefix(got, data) {
			t.Errorf("pad %d: expected prefix %q, got %q", pad, data, got)
		}
		if tail := got[len(data):]; !bytes.Equal(tail, make([]byte, len(tail))) {
			t.Errorf("pad %d: expected zeroed padding, got %v", pad, tail)
		}
		mf.close()
	}
}

func TestMemfileExpansion(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "testfile_expansion")

	mf, err := openMemFile(fileName, 8)
	if err != nil {
		t.Fatalf("Failed to create memfile: %v", err)
	}

	// Fill the first allocation except for 8 bytes
	largeData := make([]byte, minGrowthBytes-8-recordHeaderSize)
	largeData[0] = 'a'
	if err := mf.addRecord(2, largeData); err != nil {
		t.Fatalf("Failed to add large record: %v", err)
	}

	secondData := []byte("second")
	if err := mf.addRecord(3, secondData); err != nil {
		t.Fatalf("Failed to add second record: %v", err)
	}
	thirdData := []byte("third")
	if err := mf.addRecord(4, thirdData); err != nil {
		t.Fatalf("Failed to add third record: %v", err)
	}
	mf.deleteRecord(3)

	if err := mf.close(); err != nil {
		t.Fatalf("Failed to close memfile: %v", err)
	}
	mf, err = openMemFile(fileName, 8)
	if err != nil {
		t.Fatalf("Failed to re-open memfile: %v", err)
	}
	defer mf.close()

	readLargeData, err := mf.readRecord(2)
	if err != nil {
		t.Fatalf("Failed to read large record: %v", err)
	}
	if !bytes.Equal(largeData, readLargeData[:len(largeData)]) {
		t.Errorf("Expected large data, got %d bytes", len(readLargeData))
	}

	if _, err := mf.readRecord(3); err != errRecordNotFound {
		t.Errorf("Expected deleted record to stay deleted, got %v", err)
	}

	readThirdData, err := mf.readRecord(4)
	if err != nil {
		t.Fatalf("Failed to read third record: %v", err)
	}
	if !bytes.Equal(thirdData, readThirdData) {
		t.Errorf("Expected third data, got %v", readThirdData)
	}

	// the space of record 3 is reused
	before := mf.Len()
	if err := mf.addRecord(5, []byte("fifth")); err != nil {
		t.Fatalf("Failed to add fifth record: %v", err)
	}
	if mf.Len() != before {
		t.Errorf("Expected file to stay at %d bytes, got %d", before, mf.Len())
	}
}
