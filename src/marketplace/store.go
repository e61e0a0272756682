package marketplace

import "github.com/Osiyomeoh/carrychain/src/ledger"

// Store is an interface for marketplace state backends. Records are append-only
// and keyed by sequential ids that start at 1 and are never reused.
type Store interface {
	// GetRoute returns a route by id.
	GetRoute(id int) (*TravelRoute, error)
	// SetRoute inserts or updates a route.
	SetRoute(route *TravelRoute) error
	// LastRouteID returns the id of the last created route, or 0 if there is
	// none.
	LastRouteID() int
	// GetDelivery returns a delivery by id.
	GetDelivery(id int) (*Delivery, error)
	// SetDelivery inserts or updates a delivery.
	SetDelivery(delivery *Delivery) error
	// LastDeliveryID returns the id of the last created delivery, or 0 if
	// there is none.
	LastDeliveryID() int
	// GetReputation returns the review counters of an address.
	GetReputation(address ledger.Address) (*Reputation, error)
	// SetReputation inserts or updates the review counters of an address.
	SetReputation(reputation *Reputation) error
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
