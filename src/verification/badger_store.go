package verification

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"
)

const verificationPrefix = "verification"

// BadgerStore is a write-through persistent implementation of the Store
// interface, mirroring the marketplace's store: every write goes to an
// in-memory map and to Badger, and the map is rebuilt from Badger on load.
type BadgerStore struct {
	inmemStore   *InmemStore
	db           *badger.DB
	path         string
	needBoostrap bool
}

//NewBadgerStore creates a brand new Store with a new database
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}, nil
}

//LoadBadgerStore creates a Store from an existing database
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore:   NewInmemStore(),
		db:           handle,
		path:         path,
		needBoostrap: true,
	}

	if err := store.bootstrap(); err != nil {
		return nil, err
	}

	return store, nil
}

//LoadOrCreateBadgerStore loads a BadgerStore from an existing database, or
//creates a new one if the database does not exist yet.
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path)

	if err != nil {
		store, err = NewBadgerStore(path)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

// NeedBoostrap reports whether the store was loaded from an existing database.
func (s *BadgerStore) NeedBoostrap() bool {
	return s.needBoostrap
}

func (s *BadgerStore) bootstrap() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			verification := new(Verification)
			if err := verification.Unmarshal(data); err != nil {
				return err
			}
			if err := s.inmemStore.SetVerification(verification); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetVerification implements the Store interface.
func (s *BadgerStore) GetVerification(deliveryID int) (*Verification, error) {
	return s.inmemStore.GetVerification(deliveryID)
}

// SetVerification implements the Store interface.
func (s *BadgerStore) SetVerification(verification *Verification) error {
	data, err := verification.Marshal()
	if err != nil {
		return err
	}

	key := []byte(fmt.Sprintf("%s_%09d", verificationPrefix, verification.DeliveryID))

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return err
	}

	return s.inmemStore.SetVerification(verification)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}
