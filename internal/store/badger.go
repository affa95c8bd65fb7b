package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/irfndi/transit-flow/internal/training"
)

const badgerKeyPrefix = "model:"

// BadgerStore keeps artifacts in an embedded Badger database
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens a database at dir. An empty dir opens an in-memory
// database.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

func badgerKey(name string) []byte {
	return []byte(badgerKeyPrefix + name)
}

func (s *BadgerStore) Save(_ context.Context, name string, model *training.TrainedModel) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := encode(model)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(badgerKey(name), data); err != nil {
			return fmt.Errorf("set model: %w", err)
		}
		return nil
	})
}

func (s *BadgerStore) Load(_ context.Context, name string) (*training.TrainedModel, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &NotFoundError{Name: name}
		}
		if err != nil {
			return fmt.Errorf("get model: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decode(name, data)
}

func (s *BadgerStore) Exists(_ context.Context, name string) (bool, error) {
	if err := ValidateName(name); err != nil {
		return false, err
	}
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("lookup model: %w", err)
	}
	return found, nil
}

func (s *BadgerStore) Delete(ctx context.Context, name string) error {
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Name: name}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerKey(name)); err != nil {
			return fmt.Errorf("delete model: %w", err)
		}
		return nil
	})
}
