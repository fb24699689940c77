package services

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB persists transcript sessions and their entries. Sessions live in one bucket; the entries of
// each session live in a bucket of their own, keyed by entry ID.
type BoltDB struct {
	db *bolt.DB
}

// storedEntry keeps the log position next to the entry so entries can be updated in place and still
// be read back in log order.
type storedEntry struct {
	Seq   uint64                 `json:"seq"`
	Entry models.TranscriptEntry `json:"entry"`
}

var sessionsBucket = []byte("sessions")

// NewBoltDB creates a new BoltDB instance with the specified file path. The database file is created
// with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func entryBucketName(sessionID string) []byte {
	return []byte(fmt.Sprintf("session-%s", sessionID))
}

// Sessions returns all stored sessions, most recent first.
func (b BoltDB) Sessions(context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(sessionsBucket)
		if bk == nil {
			return nil
		}

		return bk.ForEach(func(_, v []byte) error {
			var s models.Session
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			sessions = append(sessions, s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sessions, func(a, b models.Session) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return sessions, nil
}

// AddSession stores a new session and creates its entry bucket. The stored ID is prefixed with a
// sequence number; it is returned to the caller.
func (b BoltDB) AddSession(_ context.Context, session models.Session) (string, error) {
	var newID string
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(sessionsBucket)
		if bk == nil {
			return fmt.Errorf("bucket %s not found", sessionsBucket)
		}

		idPrefix, err := bk.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		newID = fmt.Sprintf("%d-%s", idPrefix, session.ID)
		session.ID = newID

		if _, err := tx.CreateBucketIfNotExists(entryBucketName(newID)); err != nil {
			return fmt.Errorf("failed to create entry bucket: %w", err)
		}

		v, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return bk.Put([]byte(newID), v)
	})
	if err != nil {
		return "", err
	}

	return newID, nil
}

// PutEntry inserts entry into the session's log or, when an entry with the same ID is already stored,
// replaces it while keeping its position.
func (b BoltDB) PutEntry(_ context.Context, sessionID string, entry models.TranscriptEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(entryBucketName(sessionID))
		if bk == nil {
			return fmt.Errorf("session %s not found", sessionID)
		}

		key := []byte(entry.ID.String())
		se := storedEntry{Entry: entry}

		if v := bk.Get(key); v != nil {
			var old storedEntry
			if err := json.Unmarshal(v, &old); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			se.Seq = old.Seq
		} else {
			seq, err := bk.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get next sequence: %w", err)
			}
			se.Seq = seq
		}

		v, err := json.Marshal(se)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}

		return bk.Put(key, v)
	})
}

// Entries returns the session's transcript entries in log order.
func (b BoltDB) Entries(_ context.Context, sessionID string) ([]models.TranscriptEntry, error) {
	var stored []storedEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(entryBucketName(sessionID))
		if bk == nil {
			return nil
		}

		return bk.ForEach(func(_, v []byte) error {
			var se storedEntry
			if err := json.Unmarshal(v, &se); err != nil {
				return fmt.Errorf("failed to unmarshal entry: %w", err)
			}
			stored = append(stored, se)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(stored, func(a, b storedEntry) int {
		return cmp.Compare(a.Seq, b.Seq)
	})

	entries := make([]models.TranscriptEntry, len(stored))
	for i, se := range stored {
		entries[i] = se.Entry
	}
	return entries, nil
}
