package ledger

// SubsidySchedule computes the total satoshis minted strictly before a
// given block height. Kept pluggable per spec.md §9's design note: the
// flat 50-BTC/block rule below preserves numeric parity with the
// original source; a halving-aware schedule is a one-line swap away
// but would diverge from it, so it is not implemented here.
type SubsidySchedule interface {
	// BeforeBlock returns the total satoshis minted by all blocks
	// strictly before height. BeforeBlock(1) must be 0.
	BeforeBlock(height uint64) uint64
}

// FlatSubsidy mints a constant number of satoshis per block forever.
type FlatSubsidy struct {
	Amount uint64
}

// height follows the tracker's 1-indexed convention (genesis = 1); every
// caller that feeds heights across an RPC boundary (0-indexed in
// Bitcoin Core/btcd) must convert before reaching here, which is why
// Tracker itself never sees height 0 in normal operation. The guard
// below only keeps a stray height=0 from underflowing the subtraction.
func (f FlatSubsidy) BeforeBlock(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	return (height - 1) * f.Amount
}

// DefaultSubsidySchedule is the 50 BTC (5e9 satoshi) flat subsidy used
// by spec.md's subsidyBefore.
var DefaultSubsidySchedule = FlatSubsidy{Amount: 5_000_000_000}
