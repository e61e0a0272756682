// Package verification implements the DeliveryVerification companion contract.
// It records IPFS content identifiers proving pickup and drop-off of a
// delivery, and derives a verified flag once both proofs exist. CIDs are
// opaque strings: the contract checks them for non-emptiness only and never
// fetches their content.
//
// Proof recording is deliberately permissionless: any address may record
// proofs for any delivery id. The contract holds a reference to the
// marketplace but performs no cross-contract authorization with it; keeping
// the right party behind the submit button is the off-chain caller's job.
package verification

import (
	"strconv"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Event types emitted by the Registry.
const (
	PickupVerifiedEvent        = "PickupVerified"
	DeliveryVerifiedEvent      = "DeliveryVerified"
	VerificationCompletedEvent = "VerificationCompleted"
	MarketplaceUpdatedEvent    = "MarketplaceUpdated"
)

// Registry is the DeliveryVerification contract.
type Registry struct {
	address     ledger.Address
	owner       ledger.Address
	marketplace ledger.Address
	store       Store
	events      *ledger.EventLog
	logger      *logrus.Entry
}

// NewRegistry creates a Registry pointed at a marketplace contract.
func NewRegistry(owner, marketplace ledger.Address, store Store, events *ledger.EventLog, logger *logrus.Entry) *Registry {
	return &Registry{
		address:     ledger.ContractAddress("verification"),
		owner:       owner,
		marketplace: marketplace,
		store:       store,
		events:      events,
		logger:      logger.WithField("contract", "verification"),
	}
}

// Address returns the registry's contract address.
func (r *Registry) Address() ledger.Address {
	return r.address
}

// Marketplace returns the marketplace contract address the registry points at.
func (r *Registry) Marketplace() ledger.Address {
	return r.marketplace
}

// RecordPickup stores the pickup-side proof for a delivery, stamping it with
// the ledger time. If the drop-off proof is already present this completes the
// verification.
func (r *Registry) RecordPickup(ctx ledger.Context, deliveryID int, proofCID string) error {
	if proofCID == "" {
		return ledger.NewCallErr(ledger.Validation, "Proof CID cannot be empty")
	}

	verification := r.getOrCreate(deliveryID)
	verification.PickupProofCID = proofCID
	verification.PickupTimestamp = ctx.Time

	completed, err := r.persist(verification)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"proof_cid":   proofCID,
	}).Debug("RecordPickup")

	r.events.Emit(ctx.Time, PickupVerifiedEvent, map[string]string{
		"deliveryId": strconv.Itoa(deliveryID),
		"proofCID":   proofCID,
	})

	if completed {
		r.emitCompleted(ctx, deliveryID)
	}

	return nil
}

// RecordDelivery stores the drop-off-side proof for a delivery, symmetric to
// RecordPickup.
func (r *Registry) RecordDelivery(ctx ledger.Context, deliveryID int, proofCID string) error {
	if proofCID == "" {
		return ledger.NewCallErr(ledger.Validation, "Proof CID cannot be empty")
	}

	verification := r.getOrCreate(deliveryID)
	verification.DeliveryProofCID = proofCID
	verification.DeliveryTimestamp = ctx.Time

	completed, err := r.persist(verification)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"proof_cid":   proofCID,
	}).Debug("RecordDelivery")

	r.events.Emit(ctx.Time, DeliveryVerifiedEvent, map[string]string{
		"deliveryId": strconv.Itoa(deliveryID),
		"proofCID":   proofCID,
	})

	if completed {
		r.emitCompleted(ctx, deliveryID)
	}

	return nil
}

// persist writes the record, flagging it as notified when this write is the
// one that makes it fully verified. It reports whether VerificationCompleted
// should fire; events are only emitted after the write succeeded.
func (r *Registry) persist(verification *Verification) (bool, error) {
	completed := verification.IsVerified() && !verification.Notified
	if completed {
		verification.Notified = true
	}

	if err := r.store.SetVerification(verification); err != nil {
		return false, err
	}

	return completed, nil
}

func (r *Registry) emitCompleted(ctx ledger.Context, deliveryID int) {
	r.events.Emit(ctx.Time, VerificationCompletedEvent, map[string]string{
		"deliveryId": strconv.Itoa(deliveryID),
	})
}

// IsDeliveryVerified reports whether both proofs have been recorded for a
// delivery. Unknown ids are simply not verified.
func (r *Registry) IsDeliveryVerified(deliveryID int) bool {
	verification, err := r.store.GetVerification(deliveryID)
	if err != nil {
		return false
	}
	return verification.IsVerified()
}

// GetVerification returns the record for a delivery id. Unknown ids return an
// empty record rather than an error.
func (r *Registry) GetVerification(deliveryID int) *Verification {
	verification, err := r.store.GetVerification(deliveryID)
	if err != nil {
		return &Verification{DeliveryID: deliveryID}
	}
	return verification
}

// UpdateMarketplaceContract repoints the registry at another marketplace
// contract. Owner-gated.
func (r *Registry) UpdateMarketplaceContract(ctx ledger.Context, marketplace ledger.Address) error {
	if ctx.Caller != r.owner {
		return ledger.NewCallErr(ledger.Authorization, "Not the contract owner")
	}

	if marketplace.IsZero() {
		return ledger.NewCallErr(ledger.Validation, "Invalid marketplace address")
	}

	r.marketplace = marketplace

	r.events.Emit(ctx.Time, MarketplaceUpdatedEvent, map[string]string{
		"marketplace": marketplace.String(),
	})

	return nil
}

func (r *Registry) getOrCreate(deliveryID int) *Verification {
	verification, err := r.store.GetVerification(deliveryID)
	if err != nil {
		return &Verification{DeliveryID: deliveryID}
	}
	return verification
}
