package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes for BadgerDB storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixMeta   = byte(0x01) // meta:snapshotID -> SnapshotInfo
	prefixRecord = byte(0x02) // record:snapshotID:symbol -> Record
)

// SnapshotInfo describes one persisted registry snapshot.
type SnapshotInfo struct {
	// ID is the snapshot identifier, a random UUID.
	ID string `json:"id"`
	// CreatedAt is the snapshot creation time.
	CreatedAt time.Time `json:"createdAt"`
	// Digest is the registry digest at snapshot time.
	Digest string `json:"digest"`
	// Records is the number of catalog entries in the snapshot.
	Records int `json:"records"`
}

// SnapshotStore persists registry snapshots in BadgerDB.
//
// Key Structure:
//   - Meta:    0x01 + snapshotID -> JSON(SnapshotInfo)
//   - Records: 0x02 + snapshotID + 0x00 + symbol -> JSON(Record)
//
// Example:
//
//	store, err := registry.OpenSnapshotStore("./data/polylog")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	info, err := store.Save(reg)
//	loaded, err := store.Load(info.ID, nil)
type SnapshotStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenSnapshotStore opens (creating if needed) a snapshot store at dir.
func OpenSnapshotStore(dir string) (*SnapshotStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open snapshot store: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// OpenSnapshotStoreInMemory opens an in-memory store for testing. Data is
// lost on Close.
func OpenSnapshotStoreInMemory() (*SnapshotStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to open snapshot store: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases the underlying database.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SnapshotStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("registry: snapshot store closed")
	}
	return nil
}

func metaKey(id string) []byte {
	return append([]byte{prefixMeta}, []byte(id)...)
}

func recordKey(id, sym string) []byte {
	key := make([]byte, 0, 2+len(id)+len(sym))
	key = append(key, prefixRecord)
	key = append(key, []byte(id)...)
	key = append(key, 0x00)
	key = append(key, []byte(sym)...)
	return key
}

func recordPrefix(id string) []byte {
	key := make([]byte, 0, 2+len(id))
	key = append(key, prefixRecord)
	key = append(key, []byte(id)...)
	key = append(key, 0x00)
	return key
}

// Save persists the registry as a new snapshot and returns its metadata.
func (s *SnapshotStore) Save(reg *Registry) (SnapshotInfo, error) {
	if err := s.checkOpen(); err != nil {
		return SnapshotInfo{}, err
	}

	digest, err := reg.Digest()
	if err != nil {
		return SnapshotInfo{}, err
	}
	recs := reg.Records()

	info := SnapshotInfo{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Digest:    digest,
		Records:   len(recs),
	}

	// Badger caps transaction sizes, so large catalogs go through a
	// WriteBatch instead of one Update.
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return SnapshotInfo{}, err
		}
		if err := wb.Set(recordKey(info.ID, rec.Symbol), data); err != nil {
			return SnapshotInfo{}, err
		}
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return SnapshotInfo{}, err
	}
	if err := wb.Set(metaKey(info.ID), meta); err != nil {
		return SnapshotInfo{}, err
	}
	if err := wb.Flush(); err != nil {
		return SnapshotInfo{}, fmt.Errorf("registry: snapshot write failed: %w", err)
	}
	return info, nil
}

// Info returns the metadata of a stored snapshot.
func (s *SnapshotStore) Info(id string) (SnapshotInfo, error) {
	if err := s.checkOpen(); err != nil {
		return SnapshotInfo{}, err
	}

	var info SnapshotInfo
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("registry: snapshot %s not found", id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	return info, err
}

// records reads all records of a snapshot in key order.
func (s *SnapshotStore) records(id string) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := recordPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return recs, err
}

// Load rebuilds a registry from a stored snapshot, verifying the stored
// digest first. A drifted snapshot fails with ErrRegistryDrift and no
// registry is returned.
func (s *SnapshotStore) Load(id string, cfg *Config) (*Registry, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.Verify(id); err != nil {
		return nil, err
	}

	recs, err := s.records(id)
	if err != nil {
		return nil, err
	}
	return FromRecords(recs, cfg)
}

// Verify recomputes the digest of a stored snapshot and compares it with the
// digest recorded at save time.
func (s *SnapshotStore) Verify(id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	info, err := s.Info(id)
	if err != nil {
		return err
	}
	recs, err := s.records(id)
	if err != nil {
		return err
	}
	if len(recs) != info.Records {
		return fmt.Errorf("%w: snapshot %s has %d records, expected %d",
			ErrRegistryDrift, id, len(recs), info.Records)
	}

	reg, err := FromRecords(recs, nil)
	if err != nil {
		return err
	}
	digest, err := reg.Digest()
	if err != nil {
		return err
	}
	if digest != info.Digest {
		return fmt.Errorf("%w: snapshot %s digest %s, expected %s",
			ErrRegistryDrift, id, digest, info.Digest)
	}
	return nil
}

// List returns the metadata of every stored snapshot, newest first.
func (s *SnapshotStore) List() ([]SnapshotInfo, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var infos []SnapshotInfo
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte{prefixMeta}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var info SnapshotInfo
				if err := json.Unmarshal(val, &info); err != nil {
					return err
				}
				infos = append(infos, info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return bytes.Compare([]byte(infos[i].ID), []byte(infos[j].ID)) < 0
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}
