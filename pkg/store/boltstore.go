package store

import (
	"encoding/json"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/chaosworks/havok/pkg/cerrors"
	"github.com/chaosworks/havok/pkg/types"
)

var bucketExperiments = []byte("experiments")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed experiment store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "havok.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to open database: " + err.Error(),
		}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketExperiments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to create bucket: " + err.Error(),
		}
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save persists a snapshot of the context, the snapshot shares no state with
// the live record so a concurrent append never races the marshal
func (s *BoltStore) Save(ec *types.ExperimentContext) error {
	snap := ec.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to encode context: " + err.Error(),
		}
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExperiments).Put([]byte(snap.ID), data)
	})
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to persist context: " + err.Error(),
		}
	}
	return nil
}

// Load reads one context by experiment id
func (s *BoltStore) Load(id string) (*types.ExperimentContext, error) {
	var ec types.ExperimentContext
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExperiments).Get([]byte(id))
		if data == nil {
			return NotFound(id)
		}
		return json.Unmarshal(data, &ec)
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to load context: " + err.Error(),
		}
	}
	return &ec, nil
}

// List returns the summaries of every persisted context passing the filter
func (s *BoltStore) List(filter Filter) ([]Summary, error) {
	var summaries []Summary
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExperiments).ForEach(func(k, v []byte) error {
			var ec types.ExperimentContext
			if err := json.Unmarshal(v, &ec); err != nil {
				return err
			}
			if !filter.Matches(ec.State) {
				return nil
			}
			summaries = append(summaries, Summary{
				ID:        ec.ID,
				Name:      ec.Definition.Name,
				State:     ec.State,
				StartedAt: ec.StartedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeStorage,
			Reason:    "failed to list contexts: " + err.Error(),
		}
	}
	return summaries, nil
}
