package verification

// Store is an interface for verification-record backends.
type Store interface {
	// GetVerification returns the record for a delivery id, or a KeyNotFound
	// store error if no proof was ever recorded for it.
	GetVerification(deliveryID int) (*Verification, error)
	// SetVerification inserts or updates a record.
	SetVerification(verification *Verification) error
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
