package advsearch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/smhanov/advsearch/kql"
	"golang.org/x/exp/slices"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrQueryNotFound is returned for an id that has no saved query.
var ErrQueryNotFound = errors.New("saved query not found")

// SavedQuery is a named query string kept for later reuse. Normalized is the
// query after one parse and serialize pass, which is what the UI loads into
// its filter form.
type SavedQuery struct {
	ID         uint64    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Query      string    `json:"query" db:"query"`
	Normalized string    `json:"normalized" db:"normalized"`
	Created    time.Time `json:"created" db:"created"`
}

// NewSavedQuery builds an unsaved query and fills in its normalized form.
func NewSavedQuery(name, query string) SavedQuery {
	query = strings.TrimSpace(query)
	if query == "" {
		query = kql.MatchAll
	}
	return SavedQuery{
		Name:       strings.TrimSpace(name),
		Query:      query,
		Normalized: kql.Serialize(kql.Parse(query)),
	}
}

// QueryStore persists saved queries. SaveQuery assigns an id when q.ID is
// zero and replaces the stored query otherwise.
type QueryStore interface {
	SaveQuery(ctx context.Context, q SavedQuery) (SavedQuery, error)
	GetQuery(ctx context.Context, id uint64) (SavedQuery, error)
	ListQueries(ctx context.Context) ([]SavedQuery, error)
	DeleteQuery(ctx context.Context, id uint64) error
	Close() error
}

// OpenQueryStore opens the store selected by cfg.StoreDriver.
func OpenQueryStore(cfg Config, log zerolog.Logger) (QueryStore, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case "", StoreFile:
		if dir := filepath.Dir(cfg.StorePath); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create store folder: %w", err)
			}
		}
		return OpenFileStore(cfg.StorePath, log)
	case StorePostgres:
		return OpenPostgresStore(cfg.DatabaseURL, log)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// The query file header: magic, format version and the next id to assign.
const (
	queryFileMagic      = "ADVQ"
	queryFileVersion    = 1
	queryFileHeaderSize = 16

	offsetVersion = 4
	offsetNextID  = 8
)

// FileStore keeps saved queries in a memory-mapped record file.
type FileStore struct {
	mf  *memfile
	log zerolog.Logger
}

func OpenFileStore(path string, log zerolog.Logger) (*FileStore, error) {
	mf, err := openMemFile(path, queryFileHeaderSize)
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(queryFileMagic))
	mf.ReadAt(magic, 0)
	switch {
	case string(magic) == queryFileMagic:
		if v := mf.readUint32(offsetVersion); v != queryFileVersion {
			mf.close()
			return nil, fmt.Errorf("%s: unsupported version %d", path, v)
		}
	case isZero(magic):
		mf.WriteAt([]byte(queryFileMagic), 0)
		mf.writeUint32(offsetVersion, queryFileVersion)
		mf.writeUint64(offsetNextID, 1)
		if err := mf.File.Sync(); err != nil {
			mf.close()
			return nil, err
		}
	default:
		mf.close()
		return nil, fmt.Errorf("%s is not a saved query file", path)
	}

	log.Debug().Str("path", path).Int("queries", len(mf.idOffsets)).Msg("Opened query file")
	return &FileStore{mf: mf, log: log}, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (s *FileStore) SaveQuery(ctx context.Context, q SavedQuery) (SavedQuery, error) {
	if err := ctx.Err(); err != nil {
		return SavedQuery{}, err
	}
	if q.Created.IsZero() {
		q.Created = time.Now().UTC()
	}
	if q.ID == 0 {
		q.ID = s.nextID()
	} else {
		s.reserveID(q.ID)
	}
	if err := s.mf.addRecord(q.ID, encodeSavedQuery(q)); err != nil {
		return SavedQuery{}, fmt.Errorf("failed to save query %d: %w", q.ID, err)
	}
	s.log.Debug().Uint64("id", q.ID).Str("name", q.Name).Msg("Saved query")
	return q, nil
}

// nextID reserves an id and persists the counter.
func (s *FileStore) nextID() uint64 {
	s.mf.Lock()
	defer s.mf.Unlock()
	id := s.mf.readUint64(offsetNextID)
	if id == 0 {
		id = 1
	}
	s.mf.writeUint64(offsetNextID, id+1)
	return id
}

// reserveID moves the counter past an explicitly chosen id so it is never
// handed out again.
func (s *FileStore) reserveID(id uint64) {
	s.mf.Lock()
	defer s.mf.Unlock()
	if next := s.mf.readUint64(offsetNextID); next <= id {
		s.mf.writeUint64(offsetNextID, id+1)
	}
}

func (s *FileStore) GetQuery(ctx context.Context, id uint64) (SavedQuery, error) {
	if err := ctx.Err(); err != nil {
		return SavedQuery{}, err
	}
	data, err := s.mf.readRecord(id)
	if errors.Is(err, errRecordNotFound) {
		return SavedQuery{}, ErrQueryNotFound
	} else if err != nil {
		return SavedQuery{}, err
	}
	q, err := decodeSavedQuery(data)
	if err != nil {
		return SavedQuery{}, fmt.Errorf("query %d: %w", id, err)
	}
	q.ID = id
	return q, nil
}

func (s *FileStore) ListQueries(ctx context.Context) ([]SavedQuery, error) {
	ids := s.mf.ids()
	slices.Sort(ids)

	queries := make([]SavedQuery, 0, len(ids))
	for _, id := range ids {
		q, err := s.GetQuery(ctx, id)
		if errors.Is(err, ErrQueryNotFound) {
			// deleted since ids() was taken
			continue
		} else if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func (s *FileStore) DeleteQuery(ctx context.Context, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.mf.deleteRecord(id); errors.Is(err, errRecordNotFound) {
		return ErrQueryNotFound
	} else if err != nil {
		return err
	}
	s.log.Debug().Uint64("id", id).Msg("Deleted query")
	return nil
}

func (s *FileStore) Close() error {
	return s.mf.close()
}

// Payload field numbers.
const (
	fieldName       protowire.Number = 1
	fieldQuery      protowire.Number = 2
	fieldNormalized protowire.Number = 3
	fieldCreated    protowire.Number = 4
)

func encodeSavedQuery(q SavedQuery) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, q.Name)
	b = protowire.AppendTag(b, fieldQuery, protowire.BytesType)
	b = protowire.AppendString(b, q.Query)
	b = protowire.AppendTag(b, fieldNormalized, protowire.BytesType)
	b = protowire.AppendString(b, q.Normalized)
	b = protowire.AppendTag(b, fieldCreated, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(q.Created.UnixNano()))
	return b
}

// decodeSavedQuery reads a payload. A zero byte where a tag is expected
// ends the message, since records can carry padding.
func decodeSavedQuery(b []byte) (SavedQuery, error) {
	var q SavedQuery
	for len(b) > 0 && b[0] != 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return q, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num <= fieldNormalized:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return q, protowire.ParseError(n)
			}
			switch num {
			case fieldName:
				q.Name = v
			case fieldQuery:
				q.Query = v
			case fieldNormalized:
				q.Normalized = v
			}
			b = b[n:]
		case typ == protowire.VarintType && num == fieldCreated:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return q, protowire.ParseError(n)
			}
			q.Created = time.Unix(0, int64(v)).UTC()
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return q, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return q, nil
}
