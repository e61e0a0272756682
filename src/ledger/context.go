package ledger

// Context carries the execution context of a single state-changing call: the
// identity of the caller and the ledger timestamp at which the call executes.
// Contracts trust the Context blindly; establishing it (verifying transaction
// signatures, assigning the timestamp) is the node's job.
type Context struct {
	Caller Address
	Time   int64
}
