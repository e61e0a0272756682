package node

import (
	"crypto/ecdsa"
	"math/big"
	"strconv"
	"sync"
	"testing"

	"github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/crypto/keys"
	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/Osiyomeoh/carrychain/src/marketplace"
	"github.com/Osiyomeoh/carrychain/src/stablecoin"
	"github.com/Osiyomeoh/carrychain/src/token"
	"github.com/Osiyomeoh/carrychain/src/verification"
)

const testTime = int64(1000000)

const day = int64(86400)

type testNode struct {
	node *Node
	usdc *token.Token

	ownerKey    *ecdsa.PrivateKey
	travelerKey *ecdsa.PrivateKey
	shipperKey  *ecdsa.PrivateKey

	owner    ledger.Address
	traveler ledger.Address
	shipper  ledger.Address
}

func newTestNode(t *testing.T) *testNode {
	logger := common.NewTestEntry(t)
	events := ledger.NewEventLog()

	ownerKey, _ := keys.GenerateECDSAKey()
	travelerKey, _ := keys.GenerateECDSAKey()
	shipperKey, _ := keys.GenerateECDSAKey()

	owner := ledger.AddressFromPubKey(keys.FromPublicKey(&ownerKey.PublicKey))

	usdc := token.New("USD Coin", "USDC", 6, owner, events, logger)
	m := marketplace.New(owner, usdc, 5, marketplace.NewInmemStore(), events, logger)
	v := verification.NewRegistry(owner, m.Address(), verification.NewInmemStore(), events, logger)
	a := stablecoin.New(owner, events, logger)

	n := NewNode(m, v, a, events, logger)
	n.RegisterToken(usdc)
	n.clock = func() int64 { return testTime }

	return &testNode{
		node:        n,
		usdc:        usdc,
		ownerKey:    ownerKey,
		travelerKey: travelerKey,
		shipperKey:  shipperKey,
		owner:       owner,
		traveler:    ledger.AddressFromPubKey(keys.FromPublicKey(&travelerKey.PublicKey)),
		shipper:     ledger.AddressFromPubKey(keys.FromPublicKey(&shipperKey.PublicKey)),
	}
}

func (tn *testNode) submit(t *testing.T, key *ecdsa.PrivateKey, txType string, payload interface{}) *TxReceipt {
	t.Helper()

	receipt, err := tn.trySubmit(key, txType, payload)
	if err != nil {
		t.Fatalf("%s: %v", txType, err)
	}
	return receipt
}

func (tn *testNode) trySubmit(key *ecdsa.PrivateKey, txType string, payload interface{}) (*TxReceipt, error) {
	tx, err := NewTransaction(txType, payload)
	if err != nil {
		return nil, err
	}
	if err := tx.Sign(key); err != nil {
		return nil, err
	}
	return tn.node.SubmitTransaction(tx)
}

func (tn *testNode) checkBalance(t *testing.T, account ledger.Address, expected int64) {
	t.Helper()
	balance, err := tn.node.GetBalance(tn.usdc.Address(), account)
	if err != nil {
		t.Fatal(err)
	}
	if balance.Cmp(big.NewInt(expected)) != 0 {
		t.Fatalf("balance of %s should be %d, not %s", account.String(), expected, balance)
	}
}

func TestTransactionSignature(t *testing.T) {
	key, _ := keys.GenerateECDSAKey()

	tx, err := NewTransaction(TxSubmitReview, SubmitReviewPayload{Reviewed: ledger.ZeroAddress.String(), Positive: true})
	if err != nil {
		t.Fatal(err)
	}

	// unsigned transactions do not verify
	if _, err := tx.Verify(); err == nil {
		t.Fatal("unsigned transaction should not verify")
	}

	if err := tx.Sign(key); err != nil {
		t.Fatal(err)
	}

	caller, err := tx.Verify()
	if err != nil {
		t.Fatal(err)
	}

	expected := ledger.AddressFromPubKey(keys.FromPublicKey(&key.PublicKey))
	if caller != expected {
		t.Fatalf("caller should be %s, not %s", expected, caller)
	}

	// tampering with the payload invalidates the signature
	tx.Payload = append(tx.Payload, 0x00)
	if _, err := tx.Verify(); err == nil {
		t.Fatal("tampered transaction should not verify")
	}
}

func TestMalformedSignatureRejected(t *testing.T) {
	tn := newTestNode(t)

	tx, err := NewTransaction(TxSubmitReview, SubmitReviewPayload{Reviewed: tn.traveler.String(), Positive: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Sign(tn.shipperKey); err != nil {
		t.Fatal(err)
	}

	// garbage signatures surface as authorization errors, whatever the shape
	for _, sig := range []string{"a|", "|b", "zz", "1|2|3", "!!|??", ""} {
		tx.Signature = sig
		if _, err := tn.node.SubmitTransaction(tx); !ledger.IsCall(err, ledger.Authorization) {
			t.Fatalf("signature %q should be rejected, got %v", sig, err)
		}
	}
}

func TestTransactionMarshal(t *testing.T) {
	key, _ := keys.GenerateECDSAKey()

	tx, err := NewTransaction(TxCreateDelivery, CreateDeliveryPayload{RouteID: 1, PackageDescription: "documents", PackageWeight: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Sign(key); err != nil {
		t.Fatal(err)
	}

	data, err := tx.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	decoded := new(Transaction)
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	// the signature survives the wire format
	if _, err := decoded.Verify(); err != nil {
		t.Fatal(err)
	}

	p := CreateDeliveryPayload{}
	if err := decoded.DecodePayload(&p); err != nil {
		t.Fatal(err)
	}
	if p.PackageWeight != 1000 || p.PackageDescription != "documents" {
		t.Fatalf("payload round trip mismatch: %+v", p)
	}
}

func TestEndToEndDelivery(t *testing.T) {
	tn := newTestNode(t)

	// fund the shipper and approve the marketplace escrow account
	tn.submit(t, tn.ownerKey, TxTokenMint, TokenMovePayload{
		Token:        tn.usdc.Address().String(),
		Counterparty: tn.shipper.String(),
		Amount:       "1000000000",
	})
	tn.submit(t, tn.shipperKey, TxTokenApprove, TokenMovePayload{
		Token:        tn.usdc.Address().String(),
		Counterparty: tn.node.Marketplace().Address().String(),
		Amount:       "1000000000",
	})

	// traveler posts a route
	receipt := tn.submit(t, tn.travelerKey, TxCreateRoute, RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       testTime + day,
		ArrivalTime:         testTime + 2*day,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})
	if receipt.ID != 1 {
		t.Fatalf("route id should be 1, not %d", receipt.ID)
	}

	// shipper books a 1kg package: base 10 USDC + 5% fee = 10.5 USDC escrowed
	receipt = tn.submit(t, tn.shipperKey, TxCreateDelivery, CreateDeliveryPayload{
		RouteID:            1,
		PackageDescription: "documents",
		PackageWeight:      1000,
	})
	if receipt.ID != 1 {
		t.Fatalf("delivery id should be 1, not %d", receipt.ID)
	}
	tn.checkBalance(t, tn.shipper, 1000000000-10500000)

	// the traveler walks the pipeline
	for _, txType := range []string{TxAcceptDelivery, TxMarkPickedUp, TxMarkDelivered} {
		tn.submit(t, tn.travelerKey, txType, DeliveryIDPayload{DeliveryID: 1})
	}

	// custody proofs land on the verification registry
	tn.submit(t, tn.travelerKey, TxRecordPickup, RecordProofPayload{DeliveryID: 1, ProofCID: "QmPickup"})
	tn.submit(t, tn.shipperKey, TxRecordDelivery, RecordProofPayload{DeliveryID: 1, ProofCID: "QmDelivery"})

	if !tn.node.GetVerification(1).IsVerified() {
		t.Fatal("delivery should be verified")
	}

	// shipper confirms; escrow is released
	tn.submit(t, tn.shipperKey, TxConfirmDelivery, DeliveryIDPayload{DeliveryID: 1})

	delivery, err := tn.node.GetDelivery(1)
	if err != nil {
		t.Fatal(err)
	}
	if delivery.Status != marketplace.Completed {
		t.Fatalf("delivery should be Completed, not %s", delivery.Status)
	}

	tn.checkBalance(t, tn.traveler, 9975000)
	tn.checkBalance(t, tn.owner, 525000)
	tn.checkBalance(t, tn.node.Marketplace().Address(), 0)

	// and both parties review each other
	tn.submit(t, tn.shipperKey, TxSubmitReview, SubmitReviewPayload{Reviewed: tn.traveler.String(), Positive: true})
	if score := tn.node.GetReputationScore(tn.traveler); score != 100 {
		t.Fatalf("traveler score should be 100, not %d", score)
	}
}

func TestContractRejectionsSurface(t *testing.T) {
	tn := newTestNode(t)

	// the signature is fine but the contract rejects the call
	_, err := tn.trySubmit(tn.travelerKey, TxCreateRoute, RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       testTime - 1,
		ArrivalTime:         testTime + day,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})
	if !ledger.IsCall(err, ledger.Validation) || err.Error() != "Departure time must be in the future" {
		t.Fatalf("expected the contract's validation error, got %v", err)
	}

	_, err = tn.trySubmit(tn.travelerKey, TxAcceptDelivery, DeliveryIDPayload{DeliveryID: 99})
	if !ledger.IsCall(err, ledger.StateGuard) || err.Error() != "Delivery does not exist" {
		t.Fatalf("expected Delivery does not exist, got %v", err)
	}
}

func TestUnknownTransactionType(t *testing.T) {
	tn := newTestNode(t)

	_, err := tn.trySubmit(tn.ownerKey, "self_destruct", DeliveryIDPayload{DeliveryID: 1})
	if !ledger.IsCall(err, ledger.Validation) {
		t.Fatalf("unknown tx type should be rejected, got %v", err)
	}
}

func TestUnknownToken(t *testing.T) {
	tn := newTestNode(t)

	_, err := tn.trySubmit(tn.ownerKey, TxTokenMint, TokenMovePayload{
		Token:        ledger.ContractAddress("token/FAKE").String(),
		Counterparty: tn.shipper.String(),
		Amount:       "1",
	})
	if !ledger.IsCall(err, ledger.Validation) || err.Error() != "Unknown token" {
		t.Fatalf("expected Unknown token, got %v", err)
	}
}

func TestAdapterTransactions(t *testing.T) {
	tn := newTestNode(t)

	tn.submit(t, tn.ownerKey, TxAddToken, TokenRefPayload{Token: tn.usdc.Address().String()})

	tokens := tn.node.GetSupportedTokens()
	if len(tokens) != 1 || tokens[0] != tn.usdc.Address() {
		t.Fatalf("adapter should support USDC, got %v", tokens)
	}

	tn.submit(t, tn.ownerKey, TxUpdateTokenPrice, UpdateTokenPricePayload{
		Token:    tn.usdc.Address().String(),
		NewPrice: "99000000",
	})

	rate, err := tn.node.Adapter().GetExchangeRate(tn.usdc.Address())
	if err != nil {
		t.Fatal(err)
	}
	if rate.Cmp(big.NewInt(99000000)) != 0 {
		t.Fatalf("price should be 99000000, not %s", rate)
	}

	// process a payment through the adapter
	tn.submit(t, tn.ownerKey, TxTokenMint, TokenMovePayload{
		Token:        tn.usdc.Address().String(),
		Counterparty: tn.shipper.String(),
		Amount:       "100",
	})
	tn.submit(t, tn.shipperKey, TxTokenApprove, TokenMovePayload{
		Token:        tn.usdc.Address().String(),
		Counterparty: tn.node.Adapter().Address().String(),
		Amount:       "100",
	})
	tn.submit(t, tn.shipperKey, TxProcessPayment, ProcessPaymentPayload{
		Token:  tn.usdc.Address().String(),
		From:   tn.shipper.String(),
		To:     tn.traveler.String(),
		Amount: "40",
	})

	tn.checkBalance(t, tn.traveler, 40)
	tn.checkBalance(t, tn.shipper, 60)

	tn.submit(t, tn.ownerKey, TxRemoveToken, TokenRefPayload{Token: tn.usdc.Address().String()})
	if len(tn.node.GetSupportedTokens()) != 0 {
		t.Fatal("adapter registry should be empty after removal")
	}
}

func TestReadIsolation(t *testing.T) {
	tn := newTestNode(t)

	tn.submit(t, tn.travelerKey, TxCreateRoute, RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       testTime + day,
		ArrivalTime:         testTime + 2*day,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})

	// mutating a record handed out by the read API must not leak back into
	// the ledger
	route, err := tn.node.GetRoute(1)
	if err != nil {
		t.Fatal(err)
	}
	route.AvailableSpace = 0
	route.IsActive = false
	route.PricePerKg.SetInt64(1)

	fresh, err := tn.node.GetRoute(1)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.AvailableSpace != 5000 || !fresh.IsActive {
		t.Fatalf("stored route was mutated through a read: %+v", fresh)
	}
	if fresh.PricePerKg.Cmp(big.NewInt(10000000)) != 0 {
		t.Fatalf("stored price was mutated through a read: %s", fresh.PricePerKg)
	}

	tn.submit(t, tn.travelerKey, TxRecordPickup, RecordProofPayload{DeliveryID: 1, ProofCID: "QmPickup"})

	v := tn.node.GetVerification(1)
	v.PickupProofCID = ""

	if tn.node.GetVerification(1).PickupProofCID != "QmPickup" {
		t.Fatal("stored verification was mutated through a read")
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	tn := newTestNode(t)

	tn.submit(t, tn.travelerKey, TxCreateRoute, RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       testTime + day,
		ArrivalTime:         testTime + 2*day,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})

	wg := sync.WaitGroup{}
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			tn.trySubmit(tn.travelerKey, TxUpdateRoute, RoutePayload{
				RouteID:             1,
				DepartureLocation:   "Lagos",
				DestinationLocation: "London",
				DepartureTime:       testTime + day,
				ArrivalTime:         testTime + 2*day,
				AvailableSpace:      int64(1000 + i),
				PricePerKg:          "10000000",
			})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			route, err := tn.node.GetRoute(1)
			if err != nil {
				continue
			}
			_ = route.AvailableSpace
			_ = route.PricePerKg.String()
		}
	}()

	wg.Wait()

	route, err := tn.node.GetRoute(1)
	if err != nil {
		t.Fatal(err)
	}
	if route.AvailableSpace != 1099 {
		t.Fatalf("last update should win, space is %d", route.AvailableSpace)
	}
}

func TestNodeStats(t *testing.T) {
	tn := newTestNode(t)

	tn.submit(t, tn.travelerKey, TxCreateRoute, RoutePayload{
		DepartureLocation:   "Lagos",
		DestinationLocation: "London",
		DepartureTime:       testTime + day,
		ArrivalTime:         testTime + 2*day,
		AvailableSpace:      5000,
		PricePerKg:          "10000000",
	})

	stats := tn.node.GetStats()
	if stats["tx_count"] != "1" {
		t.Fatalf("tx_count should be 1, not %s", stats["tx_count"])
	}
	if stats["last_route_id"] != "1" {
		t.Fatalf("last_route_id should be 1, not %s", stats["last_route_id"])
	}
	if stats["owner"] != tn.owner.String() {
		t.Fatalf("owner should be %s, not %s", tn.owner, stats["owner"])
	}

	count, err := strconv.Atoi(stats["events_count"])
	if err != nil || count < 1 {
		t.Fatalf("events_count should be a positive number, got %s", stats["events_count"])
	}
}
