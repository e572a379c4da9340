package advsearch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// DumpQueryFile writes the header and every record of a saved-query file to
// w in a human-readable format. The file is mapped read-only.
func DumpQueryFile(filename string, w io.Writer) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to map %s: %w", filename, err)
	}
	defer data.Unmap()

	if len(data) < queryFileHeaderSize || string(data[:len(queryFileMagic)]) != queryFileMagic {
		return fmt.Errorf("%s is not a saved query file", filename)
	}

	fmt.Fprintf(w, "Header:\n")
	fmt.Fprintf(w, "  Version: %d\n", binary.LittleEndian.Uint32(data[offsetVersion:]))
	fmt.Fprintf(w, "  Next ID: %d\n", binary.LittleEndian.Uint64(data[offsetNextID:]))
	fmt.Fprintf(w, "  File Length: %d\n", len(data))

	fmt.Fprintln(w, "Records:")
	offset := queryFileHeaderSize
	for offset+recordHeaderSize <= len(data) {
		recordLength := int(binary.LittleEndian.Uint64(data[offset:]))
		fmt.Fprintf(w, "  Offset %d, Total Length: %d\n", offset, recordLength)
		if recordLength == 0 {
			fmt.Fprintln(w, "    (Indicates end of usable records)")
			break
		}
		if recordLength < recordHeaderSize || offset+recordLength > len(data) {
			return fmt.Errorf("corrupt record at offset %d", offset)
		}

		recordID := binary.LittleEndian.Uint64(data[offset+8:])
		if recordID == deletedRecordMarker {
			fmt.Fprintln(w, "    Free space")
			offset += recordLength
			continue
		}

		fmt.Fprintf(w, "    Record ID: %d\n", recordID)
		q, err := decodeSavedQuery(data[offset+recordHeaderSize : offset+recordLength])
		if err != nil {
			fmt.Fprintf(w, "    Undecodable payload: %v\n", err)
		} else {
			fmt.Fprintf(w, "    Name: %s\n", q.Name)
			fmt.Fprintf(w, "    Query: %s\n", q.Query)
			fmt.Fprintf(w, "    Normalized: %s\n", q.Normalized)
			fmt.Fprintf(w, "    Created: %s\n", q.Created.Format("2006-01-02 15:04:05"))
		}
		offset += recordLength
	}
	return nil
}

// ExportQueries writes every saved query in store to w as a JSON array.
func ExportQueries(ctx context.Context, store QueryStore, w io.Writer) error {
	queries, err := store.ListQueries(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(queries)
}

// ImportQueries reads a JSON array written by ExportQueries and saves each
// query under a new id. The normalized form is recomputed. It returns the
// number of queries imported.
func ImportQueries(ctx context.Context, store QueryStore, r io.Reader) (int, error) {
	var queries []SavedQuery
	if err := json.NewDecoder(r).Decode(&queries); err != nil {
		return 0, fmt.Errorf("failed to decode queries: %w", err)
	}

	for i, q := range queries {
		fresh := NewSavedQuery(q.Name, q.Query)
		fresh.Created = q.Created
		if _, err := store.SaveQuery(ctx, fresh); err != nil {
			return i, err
		}
	}
	return len(queries), nil
}
