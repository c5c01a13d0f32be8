package queue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/posagent/posagentd/internal/logger"
)

// Key namespace:
//
//	Data Type     Prefix  Key Format          Value Type
//	Job           "j:"    j:<be-uint64 id>    Job (JSON)
//	Next ID       "meta:" meta:next_id        uint64 (binary)
//
// due() and the age-based evictor both need ascending insertion order;
// since IDs are assigned monotonically from a single counter, a plain
// iteration over the "j:" namespace already yields that order, so no
// separate next_eligible/created_at index is kept.
const (
	prefixJob   = "j:"
	keyNextID   = "meta:next_id"
)

func keyJob(id uint64) []byte {
	b := make([]byte, len(prefixJob)+8)
	copy(b, prefixJob)
	binary.BigEndian.PutUint64(b[len(prefixJob):], id)
	return b
}

// BadgerStore is the durable, crash-safe Store backed by an embedded
// single-file WAL database.
type BadgerStore struct {
	db *badgerdb.DB
}

// OpenBadgerStore opens (creating if absent) the on-disk queue database at
// path. Returns an error wrapping ErrStoreUnavailable if the store cannot
// be opened, so callers know to fall back to the in-memory store.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badgerdb.DefaultOptions(path).WithLogger(nil).WithSyncWrites(true)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, &storeUnavailableError{cause: err}
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Push(job Job) (uint64, error) {
	var id uint64

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		next, err := nextID(txn)
		if err != nil {
			return err
		}
		id = next
		job.ID = id

		body, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("queue: failed to encode job: %w", err)
		}
		if err := txn.Set(keyJob(id), body); err != nil {
			return fmt.Errorf("queue: failed to store job: %w", err)
		}
		return setNextID(txn, id+1)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Due scans the job namespace in ascending id order (insertion order) and
// returns the first job whose NextEligible has passed.
func (s *BadgerStore) Due(now time.Time) (*Job, error) {
	var found *Job

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefixJob)); it.Valid(); it.Next() {
			item := it.Item()
			var job Job
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("queue: failed to decode job: %w", err)
			}
			if job.NextEligible <= now.Unix() {
				found = &job
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BadgerStore) Mark(id uint64, ok bool) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		key := keyJob(id)
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}

		var job Job
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		}); err != nil {
			return fmt.Errorf("queue: failed to decode job: %w", err)
		}

		if ok {
			return txn.Delete(key)
		}

		job.Attempts++
		job.NextEligible = time.Now().Unix() + Backoff(job.Attempts)

		body, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("queue: failed to encode job: %w", err)
		}
		return txn.Set(key, body)
	})
}

func (s *BadgerStore) Depth() (int, error) {
	count := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefixJob)); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerStore) SizeBytes() (int64, error) {
	lsm, vlog := s.db.Size()
	return lsm + vlog, nil
}

func (s *BadgerStore) EvictOlderThan(cutoff time.Time) (int, error) {
	return s.evictMatching(func(job Job) bool {
		return job.CreatedAt < cutoff.Unix()
	}, -1)
}

func (s *BadgerStore) EvictOldest(n int) (int, error) {
	return s.evictMatching(func(Job) bool { return true }, n)
}

// evictMatching deletes, in ascending id order, pending jobs for which
// match returns true, stopping after limit deletions (limit<0 means no
// cap).
func (s *BadgerStore) evictMatching(match func(Job) bool, limit int) (int, error) {
	removed := 0

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek([]byte(prefixJob)); it.Valid(); it.Next() {
			if limit >= 0 && removed+len(toDelete) >= limit {
				break
			}
			item := it.Item()
			var job Job
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			}); err != nil {
				return fmt.Errorf("queue: failed to decode job: %w", err)
			}
			if match(job) {
				toDelete = append(toDelete, append([]byte(nil), item.Key()...))
			}
		}

		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("queue: failed to evict job: %w", err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		logger.Warn("queue: eviction batch failed", "error", err)
		return removed, err
	}
	return removed, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func nextID(txn *badgerdb.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyNextID))
	if err == badgerdb.ErrKeyNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}

	var id uint64
	err = item.Value(func(val []byte) error {
		id = binary.BigEndian.Uint64(val)
		return nil
	})
	return id, err
}

func setNextID(txn *badgerdb.Txn, id uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return txn.Set([]byte(keyNextID), b)
}
