// Package history keeps the in-memory list of completed edits, newest first.
package history

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/manash/imgedit/pkg/models"
)

// DefaultLimit bounds the number of records kept in memory.
const DefaultLimit = 50

var (
	ErrNotFound  = errors.New("history record not found")
	ErrAmbiguous = errors.New("history id prefix matches more than one record")
)

// Record is one completed edit. Records are never mutated after creation.
type Record struct {
	ID        string
	Source    models.ImageAsset
	Prompt    string
	Result    models.ImageAsset
	CreatedAt time.Time
}

// NewRecord stamps a record with a ULID so ids sort in creation order even
// for edits completed within the same millisecond.
func NewRecord(source models.ImageAsset, prompt string, result models.ImageAsset) Record {
	id := ulid.Make()
	return Record{
		ID:        id.String(),
		Source:    source,
		Prompt:    prompt,
		Result:    result,
		CreatedAt: ulid.Time(id.Time()),
	}
}

type Store struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewStore returns a store holding at most limit records; limit <= 0 keeps
// every record.
func NewStore(limit int) *Store {
	return &Store{limit: limit}
}

func (s *Store) Limit() int {
	return s.limit
}

// Append inserts the record at the front and returns any records evicted by
// the capacity bound, oldest last.
func (s *Store) Append(r Record) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append([]Record{r}, s.records...)

	if s.limit <= 0 || len(s.records) <= s.limit {
		return nil
	}

	evicted := make([]Record, len(s.records)-s.limit)
	copy(evicted, s.records[s.limit:])
	s.records = s.records[:s.limit:s.limit]
	return evicted
}

func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// At returns the record at a zero-based position, newest first.
func (s *Store) At(index int) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.records) {
		return Record{}, ErrNotFound
	}
	return s.records[index], nil
}

// Get finds a record by its full id or an unambiguous id prefix.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return Record{}, ErrNotFound
	}

	var (
		found Record
		n     int
	)
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
		if strings.HasPrefix(r.ID, id) {
			found = r
			n++
		}
	}

	switch n {
	case 0:
		return Record{}, ErrNotFound
	case 1:
		return found, nil
	default:
		return Record{}, ErrAmbiguous
	}
}
