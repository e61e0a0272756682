package marketplace

import (
	"fmt"
	"os"
	"strings"

	cm "github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/dgraph-io/badger"
)

const (
	routePrefix      = "route"
	deliveryPrefix   = "delivery"
	reputationPrefix = "reputation"
)

// BadgerStore is a write-through persistent implementation of the Store
// interface. Every write goes to the in-memory store and to an underlying
// Badger database, and the in-memory store is rebuilt from the database on
// load.
type BadgerStore struct {
	inmemStore   *InmemStore
	db           *badger.DB
	path         string
	needBoostrap bool
}

//NewBadgerStore creates a brand new Store with a new database
func NewBadgerStore(path string) (*BadgerStore, error) {
	inmemStore := NewInmemStore()
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: inmemStore,
		db:         handle,
		path:       path,
	}
	return store, nil
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

// bootstrap reads all the records from the database into the in-memory store.
func (s *BadgerStore) bootstrap() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			switch {
			case strings.HasPrefix(key, routePrefix):
				route := new(TravelRoute)
				if err := route.Unmarshal(data); err != nil {
					return err
				}
				if err := s.inmemStore.SetRoute(route); err != nil {
					return err
				}
			case strings.HasPrefix(key, deliveryPrefix):
				delivery := new(Delivery)
				if err := delivery.Unmarshal(data); err != nil {
					return err
				}
				if err := s.inmemStore.SetDelivery(delivery); err != nil {
					return err
				}
			case strings.HasPrefix(key, reputationPrefix):
				reputation := new(Reputation)
				if err := reputation.Unmarshal(data); err != nil {
					return err
				}
				if err := s.inmemStore.SetReputation(reputation); err != nil {
					return err
				}
			}
		}

		return nil
	})
}

// GetRoute implements the Store interface.
func (s *BadgerStore) GetRoute(id int) (*TravelRoute, error) {
	return s.inmemStore.GetRoute(id)
}

// SetRoute implements the Store interface.
func (s *BadgerStore) SetRoute(route *TravelRoute) error {
	if err := s.dbSet(routeKey(route.ID), route); err != nil {
		return err
	}
	return s.inmemStore.SetRoute(route)
}

// LastRouteID implements the Store interface.
func (s *BadgerStore) LastRouteID() int {
	return s.inmemStore.LastRouteID()
}

// GetDelivery implements the Store interface.
func (s *BadgerStore) GetDelivery(id int) (*Delivery, error) {
	return s.inmemStore.GetDelivery(id)
}

// SetDelivery implements the Store interface.
func (s *BadgerStore) SetDelivery(delivery *Delivery) error {
	if err := s.dbSet(deliveryKey(delivery.ID), delivery); err != nil {
		return err
	}
	return s.inmemStore.SetDelivery(delivery)
}

// LastDeliveryID implements the Store interface.
func (s *BadgerStore) LastDeliveryID() int {
	return s.inmemStore.LastDeliveryID()
}

// GetReputation implements the Store interface.
func (s *BadgerStore) GetReputation(address ledger.Address) (*Reputation, error) {
	return s.inmemStore.GetReputation(address)
}

// SetReputation implements the Store interface.
func (s *BadgerStore) SetReputation(reputation *Reputation) error {
	if err := s.dbSet(reputationKey(reputation.Address), reputation); err != nil {
		return err
	}
	return s.inmemStore.SetReputation(reputation)
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

type marshaler interface {
	Marshal() ([]byte, error)
}

func (s *BadgerStore) dbSet(key []byte, record marshaler) error {
	data, err := record.Marshal()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// dbGet reads a raw record from the database. Only used in tests to verify
// write-through behaviour; reads are normally served by the in-memory store.
func (s *BadgerStore) dbGet(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, cm.NewStoreErr("Badger", cm.KeyNotFound, string(key))
	}
	return data, nil
}

func routeKey(id int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", routePrefix, id))
}

func deliveryKey(id int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", deliveryPrefix, id))
}

func reputationKey(address ledger.Address) []byte {
	return []byte(fmt.Sprintf("%s_%s", reputationPrefix, address.String()))
}
