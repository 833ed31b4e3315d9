package tts

import (
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/folioapp/folio-server/internal/domain"
)

// Key prefixes for the readaloud cache.
const (
	jobKeyPrefix   = "job:"
	audioKeyPrefix = "audio:"
)

// Cache holds readaloud job records and fetched segment audio in a
// Badger database. Entries expire after the configured TTL, matching
// the vendor's own expiry, so a cache hit never outlives the vendor's
// copy by much. Everything here is reconstructible from the vendor.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache opens the readaloud cache at the given path.
func NewCache(path string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open readaloud cache: %w", err)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Cache{
		db:     db,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// PutJob stores a job record, replacing any existing entry and
// restarting its TTL.
func (c *Cache) PutJob(job *domain.ReadaloudJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	key := []byte(jobKeyPrefix + job.ID)
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// GetJob retrieves a job record by vendor job ID.
// Returns ErrCacheMiss if the entry is absent or expired.
func (c *Cache) GetJob(jobID string) (*domain.ReadaloudJob, error) {
	key := []byte(jobKeyPrefix + jobID)
	var job domain.ReadaloudJob

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("failed to get job: %w", err)
		}

		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &job); err != nil {
				return fmt.Errorf("failed to unmarshal job: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &job, nil
}

// DeleteJob removes a job record and all of its cached segment audio.
func (c *Cache) DeleteJob(jobID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(jobKeyPrefix + jobID)); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}

		// Collect audio keys first; deleting while iterating is not safe.
		prefix := []byte(audioKeyPrefix + jobID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete audio: %w", err)
			}
		}
		return nil
	})
}

// ActiveJobs returns all cached jobs that have not reached a terminal
// status. The polling worker uses this to find jobs still in flight.
func (c *Cache) ActiveJobs() ([]*domain.ReadaloudJob, error) {
	prefix := []byte(jobKeyPrefix)
	var jobs []*domain.ReadaloudJob

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job domain.ReadaloudJob
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			})
			if err != nil {
				return err
			}
			if !job.Status.IsTerminal() {
				jobs = append(jobs, &job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// JobsForOwner returns all cached jobs belonging to one user, newest
// first by creation time.
func (c *Cache) JobsForOwner(ownerID string) ([]*domain.ReadaloudJob, error) {
	prefix := []byte(jobKeyPrefix)
	var jobs []*domain.ReadaloudJob

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job domain.ReadaloudJob
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			})
			if err != nil {
				return err
			}
			if job.OwnerID == ownerID {
				jobs = append(jobs, &job)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Insertion sort keeps this simple; a user rarely has more than a
	// handful of live jobs inside one TTL window.
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].CreatedAt.After(jobs[j-1].CreatedAt); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}

	return jobs, nil
}

// PutSegmentAudio stores rendered audio bytes for one segment.
func (c *Cache) PutSegmentAudio(jobID string, index int, data []byte) error {
	key := []byte(audioKey(jobID, index))
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}

// GetSegmentAudio retrieves cached audio bytes for one segment.
// Returns ErrCacheMiss if the entry is absent or expired.
func (c *Cache) GetSegmentAudio(jobID string, index int) ([]byte, error) {
	key := []byte(audioKey(jobID, index))
	var data []byte

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrCacheMiss
		}
		if err != nil {
			return fmt.Errorf("failed to get audio: %w", err)
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// audioKey builds the cache key for one segment's audio.
func audioKey(jobID string, index int) string {
	return audioKeyPrefix + jobID + ":" + strconv.Itoa(index)
}
