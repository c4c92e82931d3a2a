package chain

import (
	"errors"
	"fmt"
)

var (
	// ErrMiningCancelled is returned when a mining search observes its
	// cancellation signal before finding a solution.
	ErrMiningCancelled = errors.New("chain: mining cancelled")

	// ErrStaleTip is returned when the ledger tip moved while a candidate
	// block was being mined. The dequeued transactions have been requeued;
	// the caller may retry.
	ErrStaleTip = errors.New("chain: tip moved during mining")

	// ErrEmptyPool is returned by MinePending when there is nothing to mine.
	ErrEmptyPool = errors.New("chain: no pending transactions")

	// ErrNotLonger is returned when a candidate chain is valid but not
	// strictly longer than the current chain. Equal-length candidates are
	// always rejected.
	ErrNotLonger = errors.New("chain: candidate chain is not strictly longer")

	// ErrNoCommonAncestor is returned when two chains do not even share a
	// genesis block. Such chains belong to different networks and are never
	// merged.
	ErrNoCommonAncestor = errors.New("chain: no common ancestor")
)

// ValidationError reports the first block at which a block or chain fails a
// linkage, hash or difficulty check.
type ValidationError struct {
	Index  uint64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chain: invalid block at index %d: %s", e.Index, e.Reason)
}

// SerializationError reports a malformed or structurally incomplete record
// on decode. Missing fields are an error, never silently defaulted.
type SerializationError struct {
	What string
	Err  error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chain: cannot decode %s: %s", e.What, e.Err)
	}
	return fmt.Sprintf("chain: cannot decode %s", e.What)
}

func (e *SerializationError) Unwrap() error { return e.Err }
