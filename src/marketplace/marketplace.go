// Package marketplace implements the CarryChain escrow/marketplace contract.
// Travelers post routes with spare luggage capacity, shippers book deliveries
// against them, payment is escrowed in a stablecoin at booking time and
// released when the shipper confirms delivery or the platform owner resolves
// a dispute. The package also keeps the per-address review counters.
package marketplace

import (
	"math/big"
	"strconv"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Event types emitted by the Marketplace.
const (
	RouteCreatedEvent          = "RouteCreated"
	RouteUpdatedEvent          = "RouteUpdated"
	RouteDeactivatedEvent      = "RouteDeactivated"
	DeliveryCreatedEvent       = "DeliveryCreated"
	DeliveryStatusChangedEvent = "DeliveryStatusChanged"
	DeliveryDisputedEvent      = "DeliveryDisputed"
	DeliveryResolvedEvent      = "DeliveryResolved"
	ReviewSubmittedEvent       = "ReviewSubmitted"
	OwnershipTransferredEvent  = "OwnershipTransferred"
)

// ERC20 is the slice of the stablecoin's surface that the marketplace needs:
// pulling escrow in at booking time and paying it out at release time. Both
// calls must be all-or-nothing; any error aborts the enclosing operation.
type ERC20 interface {
	Address() ledger.Address
	Transfer(ctx ledger.Context, to ledger.Address, amount *big.Int) error
	TransferFrom(ctx ledger.Context, from, to ledger.Address, amount *big.Int) error
}

// Marketplace is the escrow/marketplace contract. All state-changing methods
// take a ledger.Context identifying the caller; the node serializes calls, so
// the contract itself holds no lock.
type Marketplace struct {
	address            ledger.Address
	owner              ledger.Address
	stablecoin         ERC20
	platformFeePercent int64
	store              Store
	events             *ledger.EventLog
	logger             *logrus.Entry
}

// New creates a Marketplace. The owner collects platform fees and is the only
// account allowed to resolve disputes and change platform parameters.
func New(owner ledger.Address, stablecoin ERC20, platformFeePercent int64, store Store, events *ledger.EventLog, logger *logrus.Entry) *Marketplace {
	return &Marketplace{
		address:            ledger.ContractAddress("marketplace"),
		owner:              owner,
		stablecoin:         stablecoin,
		platformFeePercent: platformFeePercent,
		store:              store,
		events:             events,
		logger:             logger.WithField("contract", "marketplace"),
	}
}

// Address returns the marketplace's contract address. Escrowed funds for all
// in-flight deliveries are pooled on this account.
func (m *Marketplace) Address() ledger.Address {
	return m.address
}

// Owner returns the current platform owner.
func (m *Marketplace) Owner() ledger.Address {
	return m.owner
}

// PlatformFeePercent returns the current platform fee percentage.
func (m *Marketplace) PlatformFeePercent() int64 {
	return m.platformFeePercent
}

// Stablecoin returns the token currently used for escrow.
func (m *Marketplace) Stablecoin() ERC20 {
	return m.stablecoin
}

// Store exposes the underlying store for read-only access by the service.
func (m *Marketplace) Store() Store {
	return m.store
}

/*******************************************************************************
Routes
*******************************************************************************/

// CreateRoute registers a new travel route owned by the caller and returns its
// id. Departure must be strictly in the future and arrival strictly after
// departure.
func (m *Marketplace) CreateRoute(ctx ledger.Context,
	departureLocation string,
	destinationLocation string,
	departureTime int64,
	arrivalTime int64,
	availableSpace int64,
	pricePerKg *big.Int) (int, error) {

	if err := validateRouteParams(ctx, departureTime, arrivalTime, availableSpace, pricePerKg); err != nil {
		return 0, err
	}

	route := &TravelRoute{
		ID:                  m.store.LastRouteID() + 1,
		Traveler:            ctx.Caller,
		DepartureLocation:   departureLocation,
		DestinationLocation: destinationLocation,
		DepartureTime:       departureTime,
		ArrivalTime:         arrivalTime,
		AvailableSpace:      availableSpace,
		PricePerKg:          new(big.Int).Set(pricePerKg),
		IsActive:            true,
	}

	if err := m.store.SetRoute(route); err != nil {
		return 0, err
	}

	m.logger.WithFields(logrus.Fields{
		"route_id": route.ID,
		"traveler": route.Traveler.String(),
	}).Debug("CreateRoute")

	m.events.Emit(ctx.Time, RouteCreatedEvent, map[string]string{
		"routeId":  strconv.Itoa(route.ID),
		"traveler": route.Traveler.String(),
	})

	return route.ID, nil
}

// UpdateRoute replaces the mutable fields of a route. Only the route's
// traveler may call it, and the time/capacity invariants are re-validated.
func (m *Marketplace) UpdateRoute(ctx ledger.Context,
	routeID int,
	departureLocation string,
	destinationLocation string,
	departureTime int64,
	arrivalTime int64,
	availableSpace int64,
	pricePerKg *big.Int) error {

	route, err := m.store.GetRoute(routeID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Route does not exist")
	}

	if ctx.Caller != route.Traveler {
		return ledger.NewCallErr(ledger.Authorization, "Not the route owner")
	}

	if err := validateRouteParams(ctx, departureTime, arrivalTime, availableSpace, pricePerKg); err != nil {
		return err
	}

	route.DepartureLocation = departureLocation
	route.DestinationLocation = destinationLocation
	route.DepartureTime = departureTime
	route.ArrivalTime = arrivalTime
	route.AvailableSpace = availableSpace
	route.PricePerKg = new(big.Int).Set(pricePerKg)

	if err := m.store.SetRoute(route); err != nil {
		return err
	}

	m.events.Emit(ctx.Time, RouteUpdatedEvent, map[string]string{
		"routeId": strconv.Itoa(route.ID),
	})

	return nil
}

// DeactivateRoute turns a route off so that no further deliveries can be
// booked against it. Existing deliveries are untouched. Calling it on an
// already-inactive route succeeds without emitting a second event; there is no
// way to reactivate a route.
func (m *Marketplace) DeactivateRoute(ctx ledger.Context, routeID int) error {
	route, err := m.store.GetRoute(routeID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Route does not exist")
	}

	if ctx.Caller != route.Traveler {
		return ledger.NewCallErr(ledger.Authorization, "Not the route owner")
	}

	if !route.IsActive {
		return nil
	}

	route.IsActive = false

	if err := m.store.SetRoute(route); err != nil {
		return err
	}

	m.events.Emit(ctx.Time, RouteDeactivatedEvent, map[string]string{
		"routeId": strconv.Itoa(route.ID),
	})

	return nil
}

// GetRoute returns a route by id.
func (m *Marketplace) GetRoute(routeID int) (*TravelRoute, error) {
	route, err := m.store.GetRoute(routeID)
	if err != nil {
		return nil, ledger.NewCallErr(ledger.StateGuard, "Route does not exist")
	}
	return route, nil
}

func validateRouteParams(ctx ledger.Context, departureTime, arrivalTime, availableSpace int64, pricePerKg *big.Int) error {
	if departureTime <= ctx.Time {
		return ledger.NewCallErr(ledger.Validation, "Departure time must be in the future")
	}
	if arrivalTime <= departureTime {
		return ledger.NewCallErr(ledger.Validation, "Arrival time must be after departure time")
	}
	if availableSpace <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Available space must be greater than zero")
	}
	if pricePerKg == nil || pricePerKg.Sign() <= 0 {
		return ledger.NewCallErr(ledger.Validation, "Price per kg must be greater than zero")
	}
	return nil
}

/*******************************************************************************
Deliveries
*******************************************************************************/

// CreateDelivery books a shipment against an active route and returns its id.
// The total price (base price plus platform fee) is computed here, pulled from
// the caller's stablecoin account into escrow, and fixed for the lifetime of
// the delivery. The route's capacity is decremented by the package weight.
//
// The token pull happens before any state is written, so a failed pull leaves
// the route and the registries untouched.
func (m *Marketplace) CreateDelivery(ctx ledger.Context, routeID int, packageDescription string, packageWeight int64) (int, error) {
	route, err := m.store.GetRoute(routeID)
	if err != nil {
		return 0, ledger.NewCallErr(ledger.StateGuard, "Route does not exist")
	}

	if !route.IsActive {
		return 0, ledger.NewCallErr(ledger.StateGuard, "Route is not active")
	}

	if packageWeight <= 0 {
		return 0, ledger.NewCallErr(ledger.Validation, "Package weight must be greater than zero")
	}

	if packageWeight > route.AvailableSpace {
		return 0, ledger.NewCallErr(ledger.Capacity, "Not enough space available")
	}

	totalPrice := m.quote(route.PricePerKg, packageWeight)

	// Escrow the payment. Failure aborts the whole operation before any state
	// is written.
	if err := m.stablecoin.TransferFrom(m.asContract(ctx), ctx.Caller, m.address, totalPrice); err != nil {
		return 0, err
	}

	booked := route.Copy()
	booked.AvailableSpace -= packageWeight

	delivery := &Delivery{
		ID:                 m.store.LastDeliveryID() + 1,
		RouteID:            route.ID,
		Traveler:           route.Traveler,
		Shipper:            ctx.Caller,
		PackageDescription: packageDescription,
		PackageWeight:      packageWeight,
		TotalPrice:         totalPrice,
		Status:             Created,
		CreatedAt:          ctx.Time,
	}

	// A store failure after the pull unwinds the booking: the escrow goes
	// back to the shipper and the route keeps its capacity.
	if err := m.store.SetRoute(booked); err != nil {
		m.refundEscrow(ctx, ctx.Caller, totalPrice)
		return 0, err
	}

	if err := m.store.SetDelivery(delivery); err != nil {
		if rbErr := m.store.SetRoute(route); rbErr != nil {
			m.logger.WithError(rbErr).Error("CreateDelivery: restoring route record")
		}
		m.refundEscrow(ctx, ctx.Caller, totalPrice)
		return 0, err
	}

	m.logger.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"route_id":    delivery.RouteID,
		"shipper":     delivery.Shipper.String(),
		"total_price": delivery.TotalPrice.String(),
	}).Debug("CreateDelivery")

	m.events.Emit(ctx.Time, DeliveryCreatedEvent, map[string]string{
		"deliveryId": strconv.Itoa(delivery.ID),
		"routeId":    strconv.Itoa(delivery.RouteID),
		"shipper":    delivery.Shipper.String(),
	})

	return delivery.ID, nil
}

// quote computes basePrice + platformFee for a package weight in grams.
// basePrice is pricePerKg * weight / 1000; the fee is the platform percentage
// of the base price. Integer division throughout.
func (m *Marketplace) quote(pricePerKg *big.Int, packageWeight int64) *big.Int {
	basePrice := new(big.Int).Mul(pricePerKg, big.NewInt(packageWeight))
	basePrice.Div(basePrice, big.NewInt(1000))

	platformFee := new(big.Int).Mul(basePrice, big.NewInt(m.platformFeePercent))
	platformFee.Div(platformFee, big.NewInt(100))

	return basePrice.Add(basePrice, platformFee)
}

// AcceptDelivery moves a delivery from Created to Accepted. Traveler-gated.
func (m *Marketplace) AcceptDelivery(ctx ledger.Context, deliveryID int) error {
	return m.advance(ctx, deliveryID, Created, Accepted)
}

// MarkAsPickedUp moves a delivery from Accepted to PickedUp. Traveler-gated.
// The status guard is what prevents a double pickup.
func (m *Marketplace) MarkAsPickedUp(ctx ledger.Context, deliveryID int) error {
	return m.advance(ctx, deliveryID, Accepted, PickedUp)
}

// MarkAsDelivered moves a delivery from PickedUp to Delivered. Traveler-gated.
func (m *Marketplace) MarkAsDelivered(ctx ledger.Context, deliveryID int) error {
	return m.advance(ctx, deliveryID, PickedUp, Delivered)
}

// advance performs a traveler-gated forward transition from exactly one
// predecessor status.
func (m *Marketplace) advance(ctx ledger.Context, deliveryID int, from, to DeliveryStatus) error {
	delivery, err := m.store.GetDelivery(deliveryID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Delivery does not exist")
	}

	if ctx.Caller != delivery.Traveler {
		return ledger.NewCallErr(ledger.Authorization, "Not the traveler")
	}

	if delivery.Status != from {
		return ledger.NewCallErr(ledger.StateGuard, "Invalid status")
	}

	delivery.Status = to

	if err := m.store.SetDelivery(delivery); err != nil {
		return err
	}

	m.emitStatusChanged(ctx, delivery)

	return nil
}

// ConfirmDelivery moves a delivery from Delivered to Completed and releases
// the escrow: the platform fee (computed on the total price) goes to the
// owner, the remainder to the traveler. This is the single point of fund
// release. Shipper-gated.
func (m *Marketplace) ConfirmDelivery(ctx ledger.Context, deliveryID int) error {
	delivery, err := m.store.GetDelivery(deliveryID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Delivery does not exist")
	}

	if ctx.Caller != delivery.Shipper {
		return ledger.NewCallErr(ledger.Authorization, "Not the shipper")
	}

	if delivery.Status != Delivered {
		return ledger.NewCallErr(ledger.StateGuard, "Invalid status")
	}

	updated := delivery.Copy()
	updated.Status = Completed

	if err := m.store.SetDelivery(updated); err != nil {
		return err
	}

	// Release the escrow only once the terminal status is durable, so a
	// replayed confirmation cannot release it twice. A failed release restores
	// the record so the funds stay claimable.
	if err := m.payoutToTraveler(ctx, updated); err != nil {
		if rbErr := m.store.SetDelivery(delivery); rbErr != nil {
			m.logger.WithError(rbErr).Error("ConfirmDelivery: restoring delivery record")
		}
		return err
	}

	m.emitStatusChanged(ctx, updated)

	return nil
}

// DisputeDelivery flags a delivery as disputed and freezes its escrow until
// the platform owner resolves it. Shipper-gated; only reachable from Accepted
// or PickedUp.
func (m *Marketplace) DisputeDelivery(ctx ledger.Context, deliveryID int) error {
	delivery, err := m.store.GetDelivery(deliveryID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Delivery does not exist")
	}

	if ctx.Caller != delivery.Shipper {
		return ledger.NewCallErr(ledger.Authorization, "Not the shipper")
	}

	if delivery.Status != Accepted && delivery.Status != PickedUp {
		return ledger.NewCallErr(ledger.StateGuard, "Invalid status")
	}

	delivery.Status = Disputed
	delivery.Disputed = true

	if err := m.store.SetDelivery(delivery); err != nil {
		return err
	}

	m.logger.WithField("delivery_id", delivery.ID).Debug("DisputeDelivery")

	m.events.Emit(ctx.Time, DeliveryDisputedEvent, map[string]string{
		"deliveryId": strconv.Itoa(delivery.ID),
	})

	return nil
}

// ResolveDispute releases the escrow of a disputed delivery. Owner-gated.
// When the traveler is favored, the payout mirrors ConfirmDelivery: the
// platform fee goes to the owner and the remainder to the traveler. When the
// shipper is favored, the full total price is refunded and no fee is taken.
// The delivery stays in Disputed status but is marked resolved so the escrow
// cannot be released twice.
func (m *Marketplace) ResolveDispute(ctx ledger.Context, deliveryID int, favorTraveler bool) error {
	if ctx.Caller != m.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	delivery, err := m.store.GetDelivery(deliveryID)
	if err != nil {
		return ledger.NewCallErr(ledger.StateGuard, "Delivery does not exist")
	}

	if delivery.Status != Disputed {
		return ledger.NewCallErr(ledger.StateGuard, "Invalid status")
	}

	if delivery.Resolved {
		return ledger.NewCallErr(ledger.StateGuard, "Dispute already resolved")
	}

	updated := delivery.Copy()
	updated.Resolved = true

	if err := m.store.SetDelivery(updated); err != nil {
		return err
	}

	// Same ordering as ConfirmDelivery: the resolved flag is durable before
	// the escrow moves, and a failed release restores the record.
	if err := m.releaseDisputed(ctx, updated, favorTraveler); err != nil {
		if rbErr := m.store.SetDelivery(delivery); rbErr != nil {
			m.logger.WithError(rbErr).Error("ResolveDispute: restoring delivery record")
		}
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"delivery_id":    delivery.ID,
		"favor_traveler": favorTraveler,
	}).Debug("ResolveDispute")

	m.events.Emit(ctx.Time, DeliveryResolvedEvent, map[string]string{
		"deliveryId":    strconv.Itoa(delivery.ID),
		"favorTraveler": strconv.FormatBool(favorTraveler),
	})

	return nil
}

// refundEscrow returns freshly pulled escrow to the shipper when a booking
// fails after the payment already moved.
func (m *Marketplace) refundEscrow(ctx ledger.Context, to ledger.Address, amount *big.Int) {
	if err := m.stablecoin.Transfer(m.asContract(ctx), to, amount); err != nil {
		m.logger.WithError(err).Error("CreateDelivery: refunding escrow")
	}
}

// releaseDisputed pays out a disputed delivery's escrow to the favored party.
func (m *Marketplace) releaseDisputed(ctx ledger.Context, delivery *Delivery, favorTraveler bool) error {
	if favorTraveler {
		return m.payoutToTraveler(ctx, delivery)
	}
	return m.stablecoin.Transfer(m.asContract(ctx), delivery.Shipper, delivery.TotalPrice)
}

// payoutToTraveler splits a delivery's escrowed total between the platform
// owner and the traveler. The fee is the platform percentage of the total
// price, not of the base price. Either share can round to zero (a zero fee
// percentage, or a total too small to carry a fee); zero shares are simply
// not transferred, because the token rejects zero-amount moves.
func (m *Marketplace) payoutToTraveler(ctx ledger.Context, delivery *Delivery) error {
	platformFee := new(big.Int).Mul(delivery.TotalPrice, big.NewInt(m.platformFeePercent))
	platformFee.Div(platformFee, big.NewInt(100))

	travelerShare := new(big.Int).Sub(delivery.TotalPrice, platformFee)

	if platformFee.Sign() > 0 {
		if err := m.stablecoin.Transfer(m.asContract(ctx), m.owner, platformFee); err != nil {
			return err
		}
	}

	if travelerShare.Sign() > 0 {
		if err := m.stablecoin.Transfer(m.asContract(ctx), delivery.Traveler, travelerShare); err != nil {
			return err
		}
	}

	return nil
}

// GetDelivery returns a delivery by id.
func (m *Marketplace) GetDelivery(deliveryID int) (*Delivery, error) {
	delivery, err := m.store.GetDelivery(deliveryID)
	if err != nil {
		return nil, ledger.NewCallErr(ledger.StateGuard, "Delivery does not exist")
	}
	return delivery, nil
}

// EscrowLiability returns the sum of the total prices of all deliveries that
// still hold escrowed funds. The marketplace's stablecoin balance must always
// be at least this amount.
func (m *Marketplace) EscrowLiability() *big.Int {
	liability := new(big.Int)
	for id := 1; id <= m.store.LastDeliveryID(); id++ {
		delivery, err := m.store.GetDelivery(id)
		if err != nil {
			continue
		}
		if !delivery.Terminal() {
			liability.Add(liability, delivery.TotalPrice)
		}
	}
	return liability
}

/*******************************************************************************
Reputation
*******************************************************************************/

// SubmitReview increments the reviewed address's counters. Any address may
// review any other; there is no check that the parties ever transacted and no
// duplicate-review guard. Who reviewed whom is only recorded in the emitted
// event.
func (m *Marketplace) SubmitReview(ctx ledger.Context, reviewed ledger.Address, positive bool) error {
	reputation, err := m.store.GetReputation(reviewed)
	if err != nil {
		reputation = &Reputation{Address: reviewed}
	}

	reputation.TotalReviews++
	if positive {
		reputation.PositiveReviews++
	}

	if err := m.store.SetReputation(reputation); err != nil {
		return err
	}

	m.events.Emit(ctx.Time, ReviewSubmittedEvent, map[string]string{
		"reviewer": ctx.Caller.String(),
		"reviewed": reviewed.String(),
		"positive": strconv.FormatBool(positive),
	})

	return nil
}

// GetReputationScore returns the 0-100 reputation score of an address.
// Addresses that have never been reviewed score 0.
func (m *Marketplace) GetReputationScore(address ledger.Address) int64 {
	reputation, err := m.store.GetReputation(address)
	if err != nil {
		return 0
	}
	return reputation.Score()
}

/*******************************************************************************
Admin
*******************************************************************************/

// UpdatePlatformFee changes the platform fee percentage. Owner-gated. The new
// percentage only affects future quotes and releases; prices fixed at delivery
// creation are never recomputed.
func (m *Marketplace) UpdatePlatformFee(ctx ledger.Context, newPercent int64) error {
	if ctx.Caller != m.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if newPercent < 0 || newPercent > 100 {
		return ledger.NewCallErr(ledger.Validation, "Invalid fee percentage")
	}

	m.platformFeePercent = newPercent

	return nil
}

// UpdateStablecoin swaps the token used for escrow. Owner-gated. Funds already
// escrowed in the previous token are still released in that token because each
// payout goes through the stablecoin held at release time; operators should
// only swap tokens while no deliveries are in flight.
func (m *Marketplace) UpdateStablecoin(ctx ledger.Context, stablecoin ERC20) error {
	if ctx.Caller != m.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if stablecoin == nil {
		return ledger.NewCallErr(ledger.Validation, "Invalid stablecoin address")
	}

	m.stablecoin = stablecoin

	return nil
}

// TransferOwnership hands the platform over to a new owner. Owner-gated.
func (m *Marketplace) TransferOwnership(ctx ledger.Context, newOwner ledger.Address) error {
	if ctx.Caller != m.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if newOwner.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid owner address")
	}

	previousOwner := m.owner
	m.owner = newOwner

	m.events.Emit(ctx.Time, OwnershipTransferredEvent, map[string]string{
		"previousOwner": previousOwner.String(),
		"newOwner":      newOwner.String(),
	})

	return nil
}

// asContract rebases the execution context so that cross-contract token calls
// are made with the marketplace's own identity.
func (m *Marketplace) asContract(ctx ledger.Context) ledger.Context {
	return ledger.Context{Caller: m.address, Time: ctx.Time}
}

func (m *Marketplace) emitStatusChanged(ctx ledger.Context, delivery *Delivery) {
	m.logger.WithFields(logrus.Fields{
		"delivery_id": delivery.ID,
		"status":      delivery.Status.String(),
	}).Debug("DeliveryStatusChanged")

	m.events.Emit(ctx.Time, DeliveryStatusChangedEvent, map[string]string{
		"deliveryId": strconv.Itoa(delivery.ID),
		"status":     delivery.Status.String(),
	})
}
