package traceindex

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// store wraps LevelDB for the raw key-value side of the index.
type store struct {
	db *leveldb.DB
}

// openStore opens or creates a LevelDB database at path. An empty path
// gives an in-memory store.
func openStore(path string) (*store, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index at %s: %w", path, err)
	}
	return &store{db: db}, nil
}

// get returns (nil, false, nil) if key is absent.
func (s *store) get(key []byte) ([]byte, bool, error) {
	data, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %x: %w", key, err)
	}
	return data, true, nil
}

func (s *store) put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *store) write(b *leveldb.Batch) error {
	return s.db.Write(b, nil)
}

// count returns the number of keys with the given prefix.
func (s *store) count(prefix []byte) (int, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	n := 0
	for ok := iter.Seek(prefix); ok; ok = iter.Next() {
		key := iter.Key()
		if len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
			break
		}
		n++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("count %x: %w", prefix, err)
	}
	return n, nil
}

func (s *store) close() error {
	return s.db.Close()
}
