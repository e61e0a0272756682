package marketplace

import (
	"strconv"

	cm "github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/ledger"
)

// InmemStore implements the Store interface with plain in-memory maps. Records
// are never evicted; the marketplace's registries are append-only, so the
// store grows with the ledger for the lifetime of the process.
//
// Records are copied on the way in and on the way out: callers can stage
// mutations on a fetched record without touching stored state until the Set
// call, and records handed out are safe to read after the store has moved on.
type InmemStore struct {
	routes         map[int]*TravelRoute
	deliveries     map[int]*Delivery
	reputations    map[ledger.Address]*Reputation
	lastRouteID    int
	lastDeliveryID int
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		routes:      make(map[int]*TravelRoute),
		deliveries:  make(map[int]*Delivery),
		reputations: make(map[ledger.Address]*Reputation),
	}
}

// GetRoute implements the Store interface.
func (s *InmemStore) GetRoute(id int) (*TravelRoute, error) {
	route, ok := s.routes[id]
	if !ok {
		return nil, cm.NewStoreErr("Route", cm.KeyNotFound, strconv.Itoa(id))
	}
	return route.Copy(), nil
}

// SetRoute implements the Store interface.
func (s *InmemStore) SetRoute(route *TravelRoute) error {
	s.routes[route.ID] = route.Copy()
	if route.ID > s.lastRouteID {
		s.lastRouteID = route.ID
	}
	return nil
}

// LastRouteID implements the Store interface.
func (s *InmemStore) LastRouteID() int {
	return s.lastRouteID
}

// GetDelivery implements the Store interface.
func (s *InmemStore) GetDelivery(id int) (*Delivery, error) {
	delivery, ok := s.deliveries[id]
	if !ok {
		return nil, cm.NewStoreErr("Delivery", cm.KeyNotFound, strconv.Itoa(id))
	}
	return delivery.Copy(), nil
}

// SetDelivery implements the Store interface.
func (s *InmemStore) SetDelivery(delivery *Delivery) error {
	s.deliveries[delivery.ID] = delivery.Copy()
	if delivery.ID > s.lastDeliveryID {
		s.lastDeliveryID = delivery.ID
	}
	return nil
}

// LastDeliveryID implements the Store interface.
func (s *InmemStore) LastDeliveryID() int {
	return s.lastDeliveryID
}

// GetReputation implements the Store interface.
func (s *InmemStore) GetReputation(address ledger.Address) (*Reputation, error) {
	reputation, ok := s.reputations[address]
	if !ok {
		return nil, cm.NewStoreErr("Reputation", cm.KeyNotFound, address.String())
	}
	return reputation.Copy(), nil
}

// SetReputation implements the Store interface.
func (s *InmemStore) SetReputation(reputation *Reputation) error {
	s.reputations[reputation.Address] = reputation.Copy()
	return nil
}

// Close implements the Store interface. It is a no-op.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
