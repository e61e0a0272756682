package verification

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Verification holds the two proof-of-custody CIDs of a delivery. A record is
// created lazily on the first proof submission. Re-recording a proof
// overwrites the previous CID and its timestamp but leaves the other side
// untouched. Unknown delivery ids read as the zero value.
type Verification struct {
	DeliveryID        int    `json:"deliveryId"`
	PickupProofCID    string `json:"pickupProofCID"`
	PickupTimestamp   int64  `json:"pickupTimestamp"`
	DeliveryProofCID  string `json:"deliveryProofCID"`
	DeliveryTimestamp int64  `json:"deliveryTimestamp"`
	// Notified records that VerificationCompleted has been emitted for this
	// delivery, so overwriting a proof afterwards does not re-fire it.
	Notified bool `json:"notified"`
}

// IsVerified is true iff both proofs have been recorded. It is derived from
// the CIDs on every read rather than stored, so it can never drift.
func (v *Verification) IsVerified() bool {
	return v.PickupProofCID != "" && v.DeliveryProofCID != ""
}

// Copy returns a copy of the record.
func (v *Verification) Copy() *Verification {
	c := *v
	return &c
}

//Marshal - json encoding of Verification
func (v *Verification) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (v *Verification) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(v); err != nil {
		return err
	}

	return nil
}
