package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	assessmentsBucket = "assessments"    // key: timestamp_id, value: Record JSON
	idsBucket         = "assessment_ids" // key: id, value: assessments key

	// fixed width so byte order is chronological order
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

	// DBFile is the BoltDB file name inside the data directory.
	DBFile = "sifra-history.db"
)

// BoltStore keeps assessment history in an embedded BoltDB file.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBolt opens (or creates) the history database under dataPath.
func NewBolt(dataPath string) (*BoltStore, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(assessmentsBucket)); err != nil {
			return fmt.Errorf("create assessments bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(idsBucket)); err != nil {
			return fmt.Errorf("create ids bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database is still open.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(assessmentsBucket)) == nil {
			return fmt.Errorf("bucket %s missing", assessmentsBucket)
		}
		return nil
	})
}

func recordKey(rec Record) []byte {
	return []byte(rec.CreatedAt.UTC().Format(keyTimeLayout) + "_" + rec.ID)
}

// Save stores rec. Saving an existing id replaces the earlier record.
func (s *BoltStore) Save(_ context.Context, rec Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket([]byte(assessmentsBucket))
		ids := tx.Bucket([]byte(idsBucket))

		if old := ids.Get([]byte(rec.ID)); old != nil {
			if err := records.Delete(old); err != nil {
				return fmt.Errorf("replace record: %w", err)
			}
		}

		key := recordKey(rec)
		if err := records.Put(key, data); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		return ids.Put([]byte(rec.ID), key)
	})
}

// Get returns the record with id, or ErrNotFound.
func (s *BoltStore) Get(_ context.Context, id string) (Record, error) {
	var rec Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(idsBucket)).Get([]byte(id))
		if key == nil {
			return ErrNotFound
		}
		data := tx.Bucket([]byte(assessmentsBucket)).Get(key)
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Recent walks the assessments bucket backwards from the newest key.
func (s *BoltStore) Recent(_ context.Context, limit int) ([]Record, error) {
	limit = ClampLimit(limit)
	records := make([]Record, 0, limit)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}
