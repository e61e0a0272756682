package ledger

// CallErrType classifies the ways a contract call can be rejected.
type CallErrType uint32

const (
	// Authorization means the caller is not the party the operation is gated
	// on.
	Authorization CallErrType = iota
	// StateGuard means the operation was called in a state that is not its
	// declared predecessor, or on a missing/inactive record.
	StateGuard
	// Validation means an input failed a static check (empty string, zero
	// address, non-positive amount, bad time ordering).
	Validation
	// Capacity means a capacity or financial invariant would be violated
	// (insufficient route space, balance or allowance).
	Capacity
)

// CallErr is returned by contract operations when a call is rejected. No
// partial state survives a CallErr: the enclosing operation performs all its
// checks before its first write, or undoes what it wrote.
//
// The reason string is part of the contract's API. Off-chain callers and tests
// match on the exact text, so reasons must stay stable.
type CallErr struct {
	errType CallErrType
	reason  string
}

// NewCallErr creates a new CallErr.
func NewCallErr(errType CallErrType, reason string) CallErr {
	return CallErr{
		errType: errType,
		reason:  reason,
	}
}

// Error implements the error interface. It returns the bare reason string.
func (e CallErr) Error() string {
	return e.reason
}

// IsCall checks that an error is of type CallErr and that its code matches the
// provided CallErrType.
func IsCall(err error, t CallErrType) bool {
	callErr, ok := err.(CallErr)
	return ok && callErr.errType == t
}
