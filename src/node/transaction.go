package node

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/Osiyomeoh/carrychain/src/common"
	"github.com/Osiyomeoh/carrychain/src/crypto"
	"github.com/Osiyomeoh/carrychain/src/crypto/keys"
	"github.com/Osiyomeoh/carrychain/src/ledger"
	"github.com/ugorji/go/codec"
)

// Transaction types understood by the node. Each maps to exactly one contract
// operation.
const (
	TxCreateRoute       = "create_route"
	TxUpdateRoute       = "update_route"
	TxDeactivateRoute   = "deactivate_route"
	TxCreateDelivery    = "create_delivery"
	TxAcceptDelivery    = "accept_delivery"
	TxMarkPickedUp      = "mark_picked_up"
	TxMarkDelivered     = "mark_delivered"
	TxConfirmDelivery   = "confirm_delivery"
	TxDisputeDelivery   = "dispute_delivery"
	TxResolveDispute    = "resolve_dispute"
	TxSubmitReview      = "submit_review"
	TxUpdatePlatformFee = "update_platform_fee"
	TxUpdateStablecoin  = "update_stablecoin"
	TxTransferOwnership = "transfer_ownership"
	TxRecordPickup      = "record_pickup"
	TxRecordDelivery    = "record_delivery"
	TxUpdateMarketplace = "update_marketplace"
	TxTokenTransfer     = "token_transfer"
	TxTokenApprove      = "token_approve"
	TxTokenMint         = "token_mint"
	TxAddToken          = "add_token"
	TxRemoveToken       = "remove_token"
	TxUpdateTokenPrice  = "update_token_price"
	TxProcessPayment    = "process_payment"
)

// Transaction is the signed envelope submitted to the node. The payload is the
// codec encoding of the type-specific payload struct; the signature covers the
// type and the payload, and the caller's address is derived from the public
// key after the signature checks out.
type Transaction struct {
	Type      string `json:"type"`
	Payload   []byte `json:"payload"`
	PubKey    string `json:"pubKey"`
	Signature string `json:"signature"`
}

//Marshal - json encoding of Transaction
func (t *Transaction) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(t); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (t *Transaction) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(t); err != nil {
		return err
	}

	return nil
}

// Hash returns the digest covered by the signature.
func (t *Transaction) Hash() []byte {
	return crypto.SimpleHashFromTwoHashes(crypto.SHA256([]byte(t.Type)), crypto.SHA256(t.Payload))
}

// Sign sets the transaction's public key and signature from a private key.
func (t *Transaction) Sign(key *ecdsa.PrivateKey) error {
	r, s, err := keys.Sign(key, t.Hash())
	if err != nil {
		return err
	}

	t.PubKey = keys.PublicKeyHex(&key.PublicKey)
	t.Signature = keys.EncodeSignature(r, s)

	return nil
}

// Verify checks the signature and returns the caller address derived from the
// public key.
func (t *Transaction) Verify() (ledger.Address, error) {
	pubBytes, err := common.DecodeFromString(t.PubKey)
	if err != nil {
		return ledger.ZeroAddress, fmt.Errorf("decoding public key: %v", err)
	}

	pub := keys.ToPublicKey(pubBytes)
	if pub == nil {
		return ledger.ZeroAddress, fmt.Errorf("invalid public key")
	}

	r, s, err := keys.DecodeSignature(t.Signature)
	if err != nil {
		return ledger.ZeroAddress, err
	}

	if !keys.Verify(pub, t.Hash(), r, s) {
		return ledger.ZeroAddress, fmt.Errorf("invalid signature")
	}

	return ledger.AddressFromPubKey(pubBytes), nil
}

// NewTransaction encodes a payload struct and wraps it in an unsigned
// Transaction.
func NewTransaction(txType string, payload interface{}) (*Transaction, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Type:    txType,
		Payload: data,
	}, nil
}

// DecodePayload decodes the transaction's payload into a payload struct.
func (t *Transaction) DecodePayload(v interface{}) error {
	return decodePayload(t.Payload, v)
}

/*******************************************************************************
Payloads
*******************************************************************************/

// RoutePayload carries the fields of create_route and, with RouteID set, of
// update_route. Monetary amounts are decimal strings.
type RoutePayload struct {
	RouteID             int    `json:"routeId"`
	DepartureLocation   string `json:"departureLocation"`
	DestinationLocation string `json:"destinationLocation"`
	DepartureTime       int64  `json:"departureTime"`
	ArrivalTime         int64  `json:"arrivalTime"`
	AvailableSpace      int64  `json:"availableSpace"`
	PricePerKg          string `json:"pricePerKg"`
}

// RouteIDPayload carries deactivate_route.
type RouteIDPayload struct {
	RouteID int `json:"routeId"`
}

// CreateDeliveryPayload carries create_delivery.
type CreateDeliveryPayload struct {
	RouteID            int    `json:"routeId"`
	PackageDescription string `json:"packageDescription"`
	PackageWeight      int64  `json:"packageWeight"`
}

// DeliveryIDPayload carries the four status transitions and dispute_delivery.
type DeliveryIDPayload struct {
	DeliveryID int `json:"deliveryId"`
}

// ResolveDisputePayload carries resolve_dispute.
type ResolveDisputePayload struct {
	DeliveryID    int  `json:"deliveryId"`
	FavorTraveler bool `json:"favorTraveler"`
}

// SubmitReviewPayload carries submit_review.
type SubmitReviewPayload struct {
	Reviewed string `json:"reviewed"`
	Positive bool   `json:"positive"`
}

// UpdatePlatformFeePayload carries update_platform_fee.
type UpdatePlatformFeePayload struct {
	NewPercent int64 `json:"newPercent"`
}

// TokenRefPayload carries operations that only reference a token by address:
// update_stablecoin, add_token, remove_token.
type TokenRefPayload struct {
	Token string `json:"token"`
}

// AddressPayload carries transfer_ownership and update_marketplace.
type AddressPayload struct {
	Address string `json:"address"`
}

// RecordProofPayload carries record_pickup and record_delivery.
type RecordProofPayload struct {
	DeliveryID int    `json:"deliveryId"`
	ProofCID   string `json:"proofCID"`
}

// TokenMovePayload carries token_transfer, token_approve and token_mint. The
// counterparty is the recipient for transfers/mints and the spender for
// approvals.
type TokenMovePayload struct {
	Token        string `json:"token"`
	Counterparty string `json:"counterparty"`
	Amount       string `json:"amount"`
}

// UpdateTokenPricePayload carries update_token_price.
type UpdateTokenPricePayload struct {
	Token    string `json:"token"`
	NewPrice string `json:"newPrice"`
}

// ProcessPaymentPayload carries process_payment.
type ProcessPaymentPayload struct {
	Token  string `json:"token"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func encodePayload(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

func decodePayload(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(v)
}
