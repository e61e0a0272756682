// Package node implements the CarryChain runtime. A Node hosts the
// marketplace, verification and stablecoin-adapter contracts plus the token
// ledgers, and applies signed transactions to them one at a time. A single
// mutex is the ledger's global transaction ordering: every state-changing call
// executes to completion atomically with respect to all other calls, and all
// guards are evaluated at execution time, never from stale reads.
package node

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/Osiyomeoh/carrychain/src/marketplace"
	"github.com/Osiyomeoh/carrychain/src/stablecoin"
	"github.com/Osiyomeoh/carrychain/src/token"
	"github.com/Osiyomeoh/carrychain/src/verification"
	"github.com/sirupsen/logrus"
)

// TxReceipt summarizes an applied transaction. ID carries the new record id
// for creating transactions (create_route, create_delivery) and is 0
// otherwise.
type TxReceipt struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
	ID     int    `json:"id,omitempty"`
}

// Node hosts the contracts and orders transactions.
type Node struct {
	coreLock sync.Mutex

	marketplace  *marketplace.Marketplace
	verification *verification.Registry
	adapter      *stablecoin.Adapter
	tokens       map[ledger.Address]*token.Token

	events  *ledger.EventLog
	logger  *logrus.Entry
	clock   func() int64
	txCount int
	start   time.Time
}

// NewNode wires a Node around already-constructed contracts.
func NewNode(m *marketplace.Marketplace,
	v *verification.Registry,
	a *stablecoin.Adapter,
	events *ledger.EventLog,
	logger *logrus.Entry) *Node {

	return &Node{
		marketplace:  m,
		verification: v,
		adapter:      a,
		tokens:       make(map[ledger.Address]*token.Token),
		events:       events,
		logger:       logger.WithField("component", "node"),
		clock:        func() int64 { return time.Now().Unix() },
		start:        time.Now(),
	}
}

// RegisterToken makes a token ledger addressable by transactions.
func (n *Node) RegisterToken(t *token.Token) {
	n.tokens[t.Address()] = t
}

// Marketplace returns the hosted marketplace contract.
func (n *Node) Marketplace() *marketplace.Marketplace {
	return n.marketplace
}

// Verification returns the hosted verification contract.
func (n *Node) Verification() *verification.Registry {
	return n.verification
}

// Adapter returns the hosted stablecoin adapter.
func (n *Node) Adapter() *stablecoin.Adapter {
	return n.adapter
}

// SubmitTransaction verifies a transaction's signature and applies it to the
// hosted contracts. Application is atomic: the node's lock is held for the
// whole call and contract operations either complete or leave no trace.
func (n *Node) SubmitTransaction(tx *Transaction) (*TxReceipt, error) {
	caller, err := tx.Verify()
	if err != nil {
		return nil, ledger.NewCallErr(ledger.Authorization, fmt.Sprintf("Invalid transaction: %v", err))
	}

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	ctx := ledger.Context{
		Caller: caller,
		Time:   n.clock(),
	}

	n.logger.WithFields(logrus.Fields{
		"type":   tx.Type,
		"caller": caller.String(),
	}).Debug("SubmitTransaction")

	receipt, err := n.apply(ctx, tx)
	if err != nil {
		return nil, err
	}

	n.txCount++

	return receipt, nil
}

func (n *Node) apply(ctx ledger.Context, tx *Transaction) (*TxReceipt, error) {
	receipt := &TxReceipt{
		Type:   tx.Type,
		Caller: ctx.Caller.String(),
	}

	switch tx.Type {

	case TxCreateRoute:
		p := RoutePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		price, err := parseAmount(p.PricePerKg)
		if err != nil {
			return nil, err
		}
		id, err := n.marketplace.CreateRoute(ctx, p.DepartureLocation, p.DestinationLocation,
			p.DepartureTime, p.ArrivalTime, p.AvailableSpace, price)
		if err != nil {
			return nil, err
		}
		receipt.ID = id

	case TxUpdateRoute:
		p := RoutePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		price, err := parseAmount(p.PricePerKg)
		if err != nil {
			return nil, err
		}
		if err := n.marketplace.UpdateRoute(ctx, p.RouteID, p.DepartureLocation, p.DestinationLocation,
			p.DepartureTime, p.ArrivalTime, p.AvailableSpace, price); err != nil {
			return nil, err
		}

	case TxDeactivateRoute:
		p := RouteIDPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.marketplace.DeactivateRoute(ctx, p.RouteID); err != nil {
			return nil, err
		}

	case TxCreateDelivery:
		p := CreateDeliveryPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		id, err := n.marketplace.CreateDelivery(ctx, p.RouteID, p.PackageDescription, p.PackageWeight)
		if err != nil {
			return nil, err
		}
		receipt.ID = id

	case TxAcceptDelivery, TxMarkPickedUp, TxMarkDelivered, TxConfirmDelivery, TxDisputeDelivery:
		p := DeliveryIDPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.applyTransition(ctx, tx.Type, p.DeliveryID); err != nil {
			return nil, err
		}

	case TxResolveDispute:
		p := ResolveDisputePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.marketplace.ResolveDispute(ctx, p.DeliveryID, p.FavorTraveler); err != nil {
			return nil, err
		}

	case TxSubmitReview:
		p := SubmitReviewPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		reviewed, err := parseAddress(p.Reviewed)
		if err != nil {
			return nil, err
		}
		if err := n.marketplace.SubmitReview(ctx, reviewed, p.Positive); err != nil {
			return nil, err
		}

	case TxUpdatePlatformFee:
		p := UpdatePlatformFeePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.marketplace.UpdatePlatformFee(ctx, p.NewPercent); err != nil {
			return nil, err
		}

	case TxUpdateStablecoin:
		p := TokenRefPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		tok, err := n.lookupToken(p.Token)
		if err != nil {
			return nil, err
		}
		if err := n.marketplace.UpdateStablecoin(ctx, tok); err != nil {
			return nil, err
		}

	case TxTransferOwnership:
		p := AddressPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		newOwner, err := parseAddress(p.Address)
		if err != nil {
			return nil, err
		}
		if err := n.marketplace.TransferOwnership(ctx, newOwner); err != nil {
			return nil, err
		}

	case TxRecordPickup:
		p := RecordProofPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.verification.RecordPickup(ctx, p.DeliveryID, p.ProofCID); err != nil {
			return nil, err
		}

	case TxRecordDelivery:
		p := RecordProofPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.verification.RecordDelivery(ctx, p.DeliveryID, p.ProofCID); err != nil {
			return nil, err
		}

	case TxUpdateMarketplace:
		p := AddressPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		addr, err := parseAddress(p.Address)
		if err != nil {
			return nil, err
		}
		if err := n.verification.UpdateMarketplaceContract(ctx, addr); err != nil {
			return nil, err
		}

	case TxTokenTransfer, TxTokenApprove, TxTokenMint:
		p := TokenMovePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		if err := n.applyTokenMove(ctx, tx.Type, p); err != nil {
			return nil, err
		}

	case TxAddToken:
		p := TokenRefPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		tok, err := n.lookupToken(p.Token)
		if err != nil {
			return nil, err
		}
		if err := n.adapter.AddSupportedToken(ctx, tok); err != nil {
			return nil, err
		}

	case TxRemoveToken:
		p := TokenRefPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		addr, err := parseAddress(p.Token)
		if err != nil {
			return nil, err
		}
		if err := n.adapter.RemoveSupportedToken(ctx, addr); err != nil {
			return nil, err
		}

	case TxUpdateTokenPrice:
		p := UpdateTokenPricePayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		addr, err := parseAddress(p.Token)
		if err != nil {
			return nil, err
		}
		price, err := parseAmount(p.NewPrice)
		if err != nil {
			return nil, err
		}
		if err := n.adapter.UpdateTokenPrice(ctx, addr, price); err != nil {
			return nil, err
		}

	case TxProcessPayment:
		p := ProcessPaymentPayload{}
		if err := tx.DecodePayload(&p); err != nil {
			return nil, badPayload(err)
		}
		tokenAddr, err := parseAddress(p.Token)
		if err != nil {
			return nil, err
		}
		from, err := parseAddress(p.From)
		if err != nil {
			return nil, err
		}
		to, err := parseAddress(p.To)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		if err := n.adapter.ProcessPayment(ctx, tokenAddr, from, to, amount); err != nil {
			return nil, err
		}

	default:
		return nil, ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Unknown transaction type: %s", tx.Type))
	}

	return receipt, nil
}

func (n *Node) applyTransition(ctx ledger.Context, txType string, deliveryID int) error {
	switch txType {
	case TxAcceptDelivery:
		return n.marketplace.AcceptDelivery(ctx, deliveryID)
	case TxMarkPickedUp:
		return n.marketplace.MarkAsPickedUp(ctx, deliveryID)
	case TxMarkDelivered:
		return n.marketplace.MarkAsDelivered(ctx, deliveryID)
	case TxConfirmDelivery:
		return n.marketplace.ConfirmDelivery(ctx, deliveryID)
	case TxDisputeDelivery:
		return n.marketplace.DisputeDelivery(ctx, deliveryID)
	}
	return ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Unknown transaction type: %s", txType))
}

func (n *Node) applyTokenMove(ctx ledger.Context, txType string, p TokenMovePayload) error {
	tok, err := n.lookupToken(p.Token)
	if err != nil {
		return err
	}

	counterparty, err := parseAddress(p.Counterparty)
	if err != nil {
		return err
	}

	amount, err := parseAmount(p.Amount)
	if err != nil {
		return err
	}

	switch txType {
	case TxTokenTransfer:
		return tok.Transfer(ctx, counterparty, amount)
	case TxTokenApprove:
		return tok.Approve(ctx, counterparty, amount)
	case TxTokenMint:
		return tok.Mint(ctx, counterparty, amount)
	}
	return ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Unknown transaction type: %s", txType))
}

func (n *Node) lookupToken(address string) (*token.Token, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	tok, ok := n.tokens[addr]
	if !ok {
		return nil, ledger.NewCallErr(ledger.Validation, "Unknown token")
	}
	return tok, nil
}

/*******************************************************************************
Read API
*******************************************************************************/

// GetRoute returns a route by id.
func (n *Node) GetRoute(id int) (*marketplace.TravelRoute, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.marketplace.GetRoute(id)
}

// GetDelivery returns a delivery by id.
func (n *Node) GetDelivery(id int) (*marketplace.Delivery, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.marketplace.GetDelivery(id)
}

// GetVerification returns the verification record of a delivery id. Unknown
// ids return an empty record.
func (n *Node) GetVerification(deliveryID int) *verification.Verification {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.verification.GetVerification(deliveryID)
}

// GetReputationScore returns the 0-100 reputation score of an address.
func (n *Node) GetReputationScore(address ledger.Address) int64 {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.marketplace.GetReputationScore(address)
}

// GetBalance returns an account's balance on a registered token.
func (n *Node) GetBalance(tokenAddress, account ledger.Address) (*big.Int, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	tok, ok := n.tokens[tokenAddress]
	if !ok {
		return nil, ledger.NewCallErr(ledger.Validation, "Unknown token")
	}
	return tok.BalanceOf(account), nil
}

// GetSupportedTokens returns the adapter's registry.
func (n *Node) GetSupportedTokens() []ledger.Address {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.adapter.GetSupportedTokens()
}

// EventsSince returns all events with a sequence number greater than seq.
func (n *Node) EventsSince(seq int) []ledger.Event {
	return n.events.EventsSince(seq)
}

// GetStats returns a map of node statistics.
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	return map[string]string{
		"uptime":               time.Since(n.start).String(),
		"tx_count":             strconv.Itoa(n.txCount),
		"events_count":         strconv.Itoa(n.events.Count()),
		"last_route_id":        strconv.Itoa(n.marketplace.Store().LastRouteID()),
		"last_delivery_id":     strconv.Itoa(n.marketplace.Store().LastDeliveryID()),
		"escrow_liability":     n.marketplace.EscrowLiability().String(),
		"platform_fee_percent": strconv.FormatInt(n.marketplace.PlatformFeePercent(), 10),
		"owner":                n.marketplace.Owner().String(),
	}
}

/*******************************************************************************
Helpers
*******************************************************************************/

func badPayload(err error) error {
	return ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Invalid payload: %v", err))
}

func parseAddress(s string) (ledger.Address, error) {
	addr, err := ledger.ParseAddress(s)
	if err != nil {
		return ledger.ZeroAddress, ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Invalid address: %s", s))
	}
	return addr, nil
}

func parseAmount(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, ledger.NewCallErr(ledger.Validation, fmt.Sprintf("Invalid amount: %s", s))
	}
	return amount, nil
}
