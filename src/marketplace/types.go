package marketplace

import (
	"bytes"
	"math/big"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/ugorji/go/codec"
)

// DeliveryStatus is the lifecycle state of a Delivery. The forward pipeline is
// Created -> Accepted -> PickedUp -> Delivered -> Completed. Disputed is a
// side-branch out of Accepted or PickedUp. Cancelled is defined for
// compatibility with off-chain consumers but no exposed operation reaches it.
type DeliveryStatus int

const (
	// Created - the shipper has booked and paid, the traveler has not accepted
	// yet.
	Created DeliveryStatus = iota
	// Accepted - the traveler has accepted the booking.
	Accepted
	// PickedUp - the traveler has collected the package.
	PickedUp
	// Delivered - the traveler declared the package delivered.
	Delivered
	// Completed - the shipper confirmed delivery; escrow has been released.
	// Terminal.
	Completed
	// Cancelled - reserved. No exposed transition reaches it. Terminal.
	Cancelled
	// Disputed - the shipper raised a dispute. Funds stay escrowed until the
	// platform owner resolves it. The forward pipeline never reopens.
	Disputed
)

// String implements the Stringer interface.
func (s DeliveryStatus) String() string {
	switch s {
	case Created:
		return "Created"
	case Accepted:
		return "Accepted"
	case PickedUp:
		return "PickedUp"
	case Delivered:
		return "Delivered"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	case Disputed:
		return "Disputed"
	default:
		return "Unknown"
	}
}

// TravelRoute is an offered luggage-carrying trip. Capacity only ever
// decreases as deliveries are booked against it; nothing returns capacity.
type TravelRoute struct {
	ID                  int
	Traveler            ledger.Address
	DepartureLocation   string
	DestinationLocation string
	DepartureTime       int64
	ArrivalTime         int64
	AvailableSpace      int64 //grams
	PricePerKg          *big.Int
	IsActive            bool
}

// Copy returns a deep copy of the route.
func (r *TravelRoute) Copy() *TravelRoute {
	c := *r
	c.PricePerKg = new(big.Int).Set(r.PricePerKg)
	return &c
}

// routeWire mirrors TravelRoute with codec-friendly field types. Amounts are
// carried as decimal strings.
type routeWire struct {
	ID                  int
	Traveler            string
	DepartureLocation   string
	DestinationLocation string
	DepartureTime       int64
	ArrivalTime         int64
	AvailableSpace      int64
	PricePerKg          string
	IsActive            bool
}

//Marshal - json encoding of TravelRoute
func (r *TravelRoute) Marshal() ([]byte, error) {
	w := routeWire{
		ID:                  r.ID,
		Traveler:            r.Traveler.String(),
		DepartureLocation:   r.DepartureLocation,
		DestinationLocation: r.DestinationLocation,
		DepartureTime:       r.DepartureTime,
		ArrivalTime:         r.ArrivalTime,
		AvailableSpace:      r.AvailableSpace,
		PricePerKg:          r.PricePerKg.String(),
		IsActive:            r.IsActive,
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(w); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (r *TravelRoute) Unmarshal(data []byte) error {
	w := routeWire{}

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(&w); err != nil {
		return err
	}

	traveler, err := ledger.ParseAddress(w.Traveler)
	if err != nil {
		return err
	}

	price, ok := new(big.Int).SetString(w.PricePerKg, 10)
	if !ok {
		price = new(big.Int)
	}

	r.ID = w.ID
	r.Traveler = traveler
	r.DepartureLocation = w.DepartureLocation
	r.DestinationLocation = w.DestinationLocation
	r.DepartureTime = w.DepartureTime
	r.ArrivalTime = w.ArrivalTime
	r.AvailableSpace = w.AvailableSpace
	r.PricePerKg = price
	r.IsActive = w.IsActive

	return nil
}

// Delivery is a single shipment booked against a route. TotalPrice is fixed at
// creation and held in escrow by the marketplace until release.
type Delivery struct {
	ID                 int
	RouteID            int
	Traveler           ledger.Address
	Shipper            ledger.Address
	PackageDescription string
	PackageWeight      int64 //grams
	TotalPrice         *big.Int
	Status             DeliveryStatus
	CreatedAt          int64
	Disputed           bool
	Resolved           bool
}

// Copy returns a deep copy of the delivery.
func (d *Delivery) Copy() *Delivery {
	c := *d
	c.TotalPrice = new(big.Int).Set(d.TotalPrice)
	return &c
}

type deliveryWire struct {
	ID                 int
	RouteID            int
	Traveler           string
	Shipper            string
	PackageDescription string
	PackageWeight      int64
	TotalPrice         string
	Status             int
	CreatedAt          int64
	Disputed           bool
	Resolved           bool
}

//Marshal - json encoding of Delivery
func (d *Delivery) Marshal() ([]byte, error) {
	w := deliveryWire{
		ID:                 d.ID,
		RouteID:            d.RouteID,
		Traveler:           d.Traveler.String(),
		Shipper:            d.Shipper.String(),
		PackageDescription: d.PackageDescription,
		PackageWeight:      d.PackageWeight,
		TotalPrice:         d.TotalPrice.String(),
		Status:             int(d.Status),
		CreatedAt:          d.CreatedAt,
		Disputed:           d.Disputed,
		Resolved:           d.Resolved,
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(w); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (d *Delivery) Unmarshal(data []byte) error {
	w := deliveryWire{}

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(&w); err != nil {
		return err
	}

	traveler, err := ledger.ParseAddress(w.Traveler)
	if err != nil {
		return err
	}

	shipper, err := ledger.ParseAddress(w.Shipper)
	if err != nil {
		return err
	}

	price, ok := new(big.Int).SetString(w.TotalPrice, 10)
	if !ok {
		price = new(big.Int)
	}

	d.ID = w.ID
	d.RouteID = w.RouteID
	d.Traveler = traveler
	d.Shipper = shipper
	d.PackageDescription = w.PackageDescription
	d.PackageWeight = w.PackageWeight
	d.TotalPrice = price
	d.Status = DeliveryStatus(w.Status)
	d.CreatedAt = w.CreatedAt
	d.Disputed = w.Disputed
	d.Resolved = w.Resolved

	return nil
}

// Terminal reports whether the delivery can never hold escrowed funds again.
// A disputed delivery is only terminal once the dispute has been resolved and
// the escrow paid out.
func (d *Delivery) Terminal() bool {
	switch d.Status {
	case Completed, Cancelled:
		return true
	case Disputed:
		return d.Resolved
	default:
		return false
	}
}

// Reputation holds the per-address review counters. There is no record of who
// reviewed whom beyond emitted events.
type Reputation struct {
	Address         ledger.Address
	PositiveReviews int64
	TotalReviews    int64
}

// Copy returns a copy of the reputation record.
func (r *Reputation) Copy() *Reputation {
	c := *r
	return &c
}

type reputationWire struct {
	Address         string
	PositiveReviews int64
	TotalReviews    int64
}

// Score returns the 0-100 integer reputation score: the percentage of positive
// reviews, with integer division, and 0 when there are no reviews at all.
func (r *Reputation) Score() int64 {
	if r.TotalReviews == 0 {
		return 0
	}
	return r.PositiveReviews * 100 / r.TotalReviews
}

//Marshal - json encoding of Reputation
func (r *Reputation) Marshal() ([]byte, error) {
	w := reputationWire{
		Address:         r.Address.String(),
		PositiveReviews: r.PositiveReviews,
		TotalReviews:    r.TotalReviews,
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(w); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (r *Reputation) Unmarshal(data []byte) error {
	w := reputationWire{}

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(&w); err != nil {
		return err
	}

	addr, err := ledger.ParseAddress(w.Address)
	if err != nil {
		return err
	}

	r.Address = addr
	r.PositiveReviews = w.PositiveReviews
	r.TotalReviews = w.TotalReviews

	return nil
}
