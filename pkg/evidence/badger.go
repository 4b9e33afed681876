package evidence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

const labelPrefix = "label/"

// BadgerStore is a Badger-backed Store for runs whose label state should
// survive outside a single blob file (large pools, inspection tooling). It
// satisfies the same write-once promotion contract as MemoryStore.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a Badger-backed store at dir.
func OpenBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence store at %s: %w", dir, err)
	}
	logger.Debug("opened badger evidence store", "dir", dir)
	return &BadgerStore{db: db}, nil
}

func labelKey(questionID int) []byte {
	return []byte(labelPrefix + strconv.Itoa(questionID))
}

func (s *BadgerStore) Get(questionID int) int {
	value := Unlabeled
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(labelKey(questionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.Atoi(string(val))
			if err != nil {
				return err
			}
			value = v
			return nil
		})
	})
	if err != nil {
		return Unlabeled
	}
	return value
}

func (s *BadgerStore) Ensure(questionID int) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := labelKey(questionID)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, []byte(strconv.Itoa(Unlabeled)))
	})
}

func (s *BadgerStore) Promote(questionID, docIndex int) error {
	if docIndex < 0 {
		return fmt.Errorf("question %d: doc %d: %w", questionID, docIndex, ErrInvalidDocIndex)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		key := labelKey(questionID)
		item, err := txn.Get(key)
		if err == nil {
			var cur int
			if err := item.Value(func(val []byte) error {
				cur, err = strconv.Atoi(string(val))
				return err
			}); err != nil {
				return err
			}
			if cur != Unlabeled {
				return fmt.Errorf("question %d already labeled with doc %d: %w", questionID, cur, ErrAlreadyLabeled)
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return txn.Set(key, []byte(strconv.Itoa(docIndex)))
	})
}

func (s *BadgerStore) Labeled() int {
	n := 0
	_ = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(labelPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				if v, err := strconv.Atoi(string(val)); err == nil && v != Unlabeled {
					n++
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return n
}

// Serialize exports the full mapping as the same JSON blob format MemoryStore
// uses, so the two backends interchange freely between rounds.
func (s *BadgerStore) Serialize() ([]byte, error) {
	labels := make(map[int]int)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(labelPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			qid, err := strconv.Atoi(string(item.Key()[len(prefix):]))
			if err != nil {
				return fmt.Errorf("corrupt evidence key %q: %w", item.Key(), err)
			}
			err = item.Value(func(val []byte) error {
				v, err := strconv.Atoi(string(val))
				if err != nil {
					return err
				}
				labels[qid] = v
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
	return json.Marshal(labels)
}

// Import loads a Serialize blob into the store, replacing existing entries.
func (s *BadgerStore) Import(blob []byte) error {
	labels := make(map[int]int)
	if err := json.Unmarshal(blob, &labels); err != nil {
		return fmt.Errorf("failed to decode evidence labels: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for qid, v := range labels {
			if err := txn.Set(labelKey(qid), []byte(strconv.Itoa(v))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
