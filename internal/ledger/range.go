// Package ledger implements the First-To-Spend satoshi-range tracker:
// a state machine over two mutually-consistent ordered maps (forward
// and inverse) that tracks, for every live UTXO, the contiguous ranges
// of satoshi identities it currently holds.
package ledger

import "fmt"

// SatoshiRange is the half-open interval [Lo, Hi) of satoshi identities.
// Two ranges never overlap once they live in the inverse map, so
// ordering by Lo alone is a total order among stored ranges.
type SatoshiRange struct {
	Lo uint64
	Hi uint64
}

// Len returns the number of satoshis covered by the range.
func (r SatoshiRange) Len() uint64 {
	return r.Hi - r.Lo
}

// Empty reports whether the range carries zero satoshis. Every range
// stored in forward or inverse has Lo < Hi; Lo == Hi is reserved as the
// "no range yet" sentinel used while walking input ranges in processTX.
func (r SatoshiRange) Empty() bool {
	return r.Lo == r.Hi
}

// Contains reports whether satoshi s falls inside [Lo, Hi).
func (r SatoshiRange) Contains(s uint64) bool {
	return r.Lo <= s && s < r.Hi
}

func (r SatoshiRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Lo, r.Hi)
}
