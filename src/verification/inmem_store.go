package verification

import (
	"strconv"

	cm "github.com/Osiyomeoh/carrychain/src/common"
)

// InmemStore implements the Store interface with an in-memory map. Records are
// copied on the way in and on the way out, so callers can stage mutations on a
// fetched record without touching stored state until the Set call.
type InmemStore struct {
	verifications map[int]*Verification
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		verifications: make(map[int]*Verification),
	}
}

// GetVerification implements the Store interface.
func (s *InmemStore) GetVerification(deliveryID int) (*Verification, error) {
	verification, ok := s.verifications[deliveryID]
	if !ok {
		return nil, cm.NewStoreErr("Verification", cm.KeyNotFound, strconv.Itoa(deliveryID))
	}
	return verification.Copy(), nil
}

// SetVerification implements the Store interface.
func (s *InmemStore) SetVerification(verification *Verification) error {
	s.verifications[verification.DeliveryID] = verification.Copy()
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
