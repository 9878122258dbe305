package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/crewtimer/lynxbridge/pkg/domain"
)

const lapEntity = "lap"

// LapStore persists laps in badger keyed by uuid and mirrors them in
// memory in arrival order. The mirror is the source of truth for lookups;
// badger is best-effort durability. All mutations go through one mutex so
// the ingest path and the delivery retry path never interleave.
type LapStore struct {
	entityPrefix []byte
	db           *badger.DB

	mu   sync.Mutex
	laps []domain.Lap
}

func NewLapStore(db *badger.DB) *LapStore {
	return &LapStore{
		entityPrefix: []byte(lapEntity),
		db:           db,
	}
}

func (s *LapStore) buildKey(key string) []byte {
	return []byte(fmt.Sprintf("%s/%s", string(s.entityPrefix), key))
}

func (s *LapStore) buildValue(value interface{}) ([]byte, error) {
	buf, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lap: %w", err)
	}
	return buf, nil
}

// Upsert stamps the lap with the next sequence number and mutation time,
// replaces the mirror entry with the same keyid (appending if new), and
// writes the row keyed by uuid. A storage write failure is logged; the
// mirror still reflects the value so readers stay consistent.
func (s *LapStore) Upsert(lap *domain.Lap) {
	s.mu.Lock()
	s.upsertLocked(lap)
	s.mu.Unlock()
}

// upsertLocked is Upsert without the lock; callers hold mu.
func (s *LapStore) upsertLocked(lap *domain.Lap) {
	lap.SequenceNum++
	lap.Timestamp = time.Now().UnixMilli()

	found := false
	for i := range s.laps {
		if s.laps[i].KeyID == lap.KeyID {
			s.laps[i] = *lap
			found = true
			break
		}
	}
	if !found {
		s.laps = append(s.laps, *lap)
	}

	// the write stays under the mutex so rows reach badger in mutation
	// order; a failure degrades durability but the mirror keeps the value
	if err := s.write(*lap); err != nil {
		log.Err(err).Str("uuid", lap.UUID).Msg("failed to persist lap")
	}
}

func (s *LapStore) write(lap domain.Lap) error {
	buf, err := s.buildValue(lap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.buildKey(lap.UUID), buf)
	})
}

// Patch loads the lap with the given uuid, applies mutate, and upserts the
// result. Unknown uuids are a silent no-op; callers treat that as an
// already-reset store. The lookup, mutate and upsert run under one lock so
// a concurrent Upsert for the same lap cannot land in between and be
// clobbered by the stale copy.
func (s *LapStore) Patch(uuid string, mutate func(lap *domain.Lap)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lap domain.Lap
	found := false
	for i := range s.laps {
		if s.laps[i].UUID == uuid {
			lap = s.laps[i]
			found = true
			break
		}
	}
	if !found {
		return false
	}
	mutate(&lap)
	s.upsertLocked(&lap)
	return true
}

// FindByKeyID returns the mirror entry with the given keyid.
func (s *LapStore) FindByKeyID(keyid string) (domain.Lap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.laps {
		if s.laps[i].KeyID == keyid {
			return s.laps[i], true
		}
	}
	return domain.Lap{}, false
}

// FindByUUID returns the mirror entry with the given uuid.
func (s *LapStore) FindByUUID(uuid string) (domain.Lap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.laps {
		if s.laps[i].UUID == uuid {
			return s.laps[i], true
		}
	}
	return domain.Lap{}, false
}

// Laps returns a snapshot copy of the mirror.
func (s *LapStore) Laps() []domain.Lap {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Lap, len(s.laps))
	copy(out, s.laps)
	return out
}

// LoadAll repopulates the mirror from badger, ordered by mutation time.
// Badger iterates in key order, not write order, so the read is sorted on
// the Timestamp stamped at upsert to keep the observable list order stable.
func (s *LapStore) LoadAll() error {
	var laps []domain.Lap
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(s.entityPrefix); it.ValidForPrefix(s.entityPrefix); it.Next() {
			var l domain.Lap
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &l)
			}); err != nil {
				return err
			}
			laps = append(laps, l)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load laps: %w", err)
	}

	sort.SliceStable(laps, func(i, j int) bool {
		return laps[i].Timestamp < laps[j].Timestamp
	})

	s.mu.Lock()
	s.laps = laps
	s.mu.Unlock()
	log.Info().Int("count", len(laps)).Msg("laps restored from storage")
	return nil
}

// Truncate drops every persisted lap and empties the mirror. Used when the
// operator resets the regatta.
func (s *LapStore) Truncate() error {
	// mirror clear and prefix drop stay under one lock so an upsert
	// cannot slip between them and leave the two views diverged
	s.mu.Lock()
	defer s.mu.Unlock()
	s.laps = nil
	if err := s.db.DropPrefix([]byte(lapEntity + "/")); err != nil {
		return fmt.Errorf("failed to truncate laps: %w", err)
	}
	return nil
}
