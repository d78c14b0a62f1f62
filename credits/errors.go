package credits

import (
	"fmt"

	"github.com/loipv/hubcore/triage"
)

// DeductionErrorKind says why a deduction could not be made
type DeductionErrorKind int

const (
	// MissingItem means the credit sheet has no price for the item and chain
	MissingItem DeductionErrorKind = iota + 1
	// InsufficientBalance means the available balance is below the cost
	InsufficientBalance
	// InvalidCost means the cost does not fit in an event
	InvalidCost
	// Send means the deduction event could not be written
	Send
)

func (k DeductionErrorKind) String() string {
	switch k {
	case MissingItem:
		return "missing item"
	case InsufficientBalance:
		return "insufficient balance"
	case InvalidCost:
		return "invalid cost"
	case Send:
		return "send"
	default:
		return fmt.Sprintf("deduction_error(%d)", int(k))
	}
}

// DeductionError reports a failed cost lookup or deduction for one line item
type DeductionError[I LineItem] struct {
	Item  I
	Chain Blockchain
	Kind  DeductionErrorKind

	// Available and Cost are set for InsufficientBalance and InvalidCost
	Available uint64
	Cost      uint64

	// Err is the send failure for Send
	Err error
}

func (e *DeductionError[I]) Error() string {
	prefix := fmt.Sprintf("credits: line item %s on %s", e.Item, e.Chain)
	switch e.Kind {
	case MissingItem:
		return prefix + ": no price in credit sheet"
	case InsufficientBalance:
		return fmt.Sprintf("%s: insufficient available balance %d, need %d", prefix, e.Available, e.Cost)
	case InvalidCost:
		return fmt.Sprintf("%s: invalid cost %d", prefix, e.Cost)
	default:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
	}
}

func (e *DeductionError[I]) Unwrap() error { return e.Err }

// Severity is Permanent except for send failures, which keep the severity of
// the underlying error
func (e *DeductionError[I]) Severity() triage.Severity {
	if e.Kind == Send {
		return triage.Of(e.Err)
	}
	return triage.Permanent
}
