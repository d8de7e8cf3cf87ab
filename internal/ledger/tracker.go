package ledger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// DebugHook is invoked once per traced satoshi, each time it is
// assigned to an output during normal processing (spec.md §6's
// fts.debug.target mechanism).
type DebugHook func(satoshi uint64, outpt Outpoint, isCoinbase bool, offset uint64)

// Tracker is the satoshi-range ledger: the forward map, the inverse
// map, and the per-transaction/per-block state machine that keeps them
// mutually consistent. It is driven synchronously by a single caller
// (the chain-source adapter) per spec.md §5 — the mutex exists only so
// that read-only observers (the HTTP API) can safely take a snapshot
// from a different goroutine, not to support concurrent ingestion.
type Tracker struct {
	mu sync.Mutex

	forward *forwardMap
	inverse *inverseMap
	subsidy SubsidySchedule

	cutoffBlock int64 // < 0 means "no cutoff"
	curHeight   uint64
	totalMinted uint64

	// Scratch state for the transaction currently being assembled.
	curTxHash chainhash.Hash
	hasInputs bool
	inRanges  []SatoshiRange
	outValues []uint64

	// Scratch state for the block's coinbase, accumulated across every
	// non-coinbase EndTX and finally processed at EndBlock.
	coinbaseTxHash    chainhash.Hash
	coinbaseInRanges  []SatoshiRange
	coinbaseOutValues []uint64

	debugTargets map[uint64]bool
	DebugWriter  io.Writer // defaults to io.Discard; set to enable debug: lines

	// OnDestroyed, if set, fires once per range swept into a coinbase
	// sink sentinel — used to mirror the event into an audit sink. It
	// runs with the tracker's mutex held, so it must not call back into
	// the Tracker.
	OnDestroyed func(coinbaseTx chainhash.Hash, r SatoshiRange)

	FirstPassStart  time.Time
	SecondPassStart time.Time
}

// New creates a Tracker. cutoffBlock mirrors the -a/--atBlock CLI flag:
// -1 means "process every block".
func New(subsidy SubsidySchedule, cutoffBlock int64) *Tracker {
	return &Tracker{
		forward:      newForwardMap(),
		inverse:      newInverseMap(),
		subsidy:      subsidy,
		cutoffBlock:  cutoffBlock,
		debugTargets: make(map[uint64]bool),
		DebugWriter:  io.Discard,
	}
}

// SetDebugTargets marks satoshis to trace. Every time one of them
// enters an output, a debug: line is written to DebugWriter.
func (t *Tracker) SetDebugTargets(sats []uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range sats {
		t.debugTargets[s] = true
	}
}

// NeedTXHash always returns true: the tracker keys everything by tx
// hash, so the parser must compute and supply it.
func (t *Tracker) NeedTXHash() bool { return true }

// StartBlock begins a new block. It reports whether the caller should
// stop ingestion (the -a/--atBlock cutoff was reached) before any of
// this block's events are processed — the tracker's state remains the
// snapshot as of the end of the previous block.
func (t *Tracker) StartBlock(height uint64, chainSize uint64) (stop bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cutoffBlock >= 0 && height >= uint64(t.cutoffBlock) {
		return true
	}

	t.curHeight = height
	t.coinbaseTxHash = chainhash.Hash{}
	t.coinbaseInRanges = nil
	t.coinbaseOutValues = nil
	return false
}

// StartTX begins a new transaction.
func (t *Tracker) StartTX(hash chainhash.Hash) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.curTxHash = hash
	t.hasInputs = false
	t.inRanges = t.inRanges[:0]
	t.outValues = t.outValues[:0]
}

// Edge records an input: the current transaction consumes the UTXO at
// (prevTxHash, prevOutIndex). Its ranges move from forward into the
// current transaction's input range list and leave the inverse map
// (they are reinserted, possibly split across outputs, in EndTX).
func (t *Tracker) Edge(prevTxHash chainhash.Hash, prevOutIndex int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	outpt := Outpoint{TxHash: prevTxHash, OutIndex: prevOutIndex}
	ranges, ok := t.forward.get(outpt)
	if !ok {
		return &TxError{TxHash: t.curTxHash, Err: fmt.Errorf("%w: %s", ErrUnknownOutpoint, outpt)}
	}

	t.inRanges = append(t.inRanges, ranges...)
	for _, r := range ranges {
		t.inverse.erase(r)
	}
	t.forward.delete(outpt)
	t.hasInputs = true
	return nil
}

// EndOutput records an output value, in satoshis, in output order.
func (t *Tracker) EndOutput(value uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outValues = append(t.outValues, value)
}

// EndTX commits the transaction: a spending transaction is processed
// immediately (its leftover feeds the block's coinbase sweep buffer); a
// no-input transaction is the block's coinbase and is stashed until
// EndBlock, seeded with the freshly minted subsidy interval.
func (t *Tracker) EndTX() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasInputs {
		leftover, err := t.processTX(t.inRanges, t.outValues, t.curTxHash, false)
		if err != nil {
			return err
		}
		t.coinbaseInRanges = append(t.coinbaseInRanges, leftover...)
		return nil
	}

	t.coinbaseInRanges = []SatoshiRange{{
		Lo: t.subsidy.BeforeBlock(t.curHeight),
		Hi: t.subsidy.BeforeBlock(t.curHeight + 1),
	}}
	t.coinbaseOutValues = append([]uint64(nil), t.outValues...)
	t.coinbaseTxHash = t.curTxHash
	return nil
}

// EndBlock processes the stashed coinbase transaction with every fee
// collected during the block, then advances the minted-satoshi count.
func (t *Tracker) EndBlock() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.processTX(t.coinbaseInRanges, t.coinbaseOutValues, t.coinbaseTxHash, true); err != nil {
		return err
	}
	t.totalMinted = t.subsidy.BeforeBlock(t.curHeight + 1)
	return nil
}

// processTX is the FIFO bucketing algorithm of spec.md §4.3: it walks
// inRanges in order, carving off pieces to satisfy each outValue in
// turn, and reports whatever input satoshis were left unconsumed.
//
// For a non-coinbase tx the leftover is the caller's problem (it goes
// into the block's coinbase sweep buffer). For the coinbase tx itself,
// leftover has nowhere further to go: it is destroyed into the
// coinbase sink sentinel (txHash, CoinbaseSinkIndex) and logged.
func (t *Tracker) processTX(inRanges []SatoshiRange, outValues []uint64, txHash chainhash.Hash, isCoinbase bool) ([]SatoshiRange, error) {
	var cur SatoshiRange // cur.Empty() == true marks "no range on hand"
	idx := 0

	for i, val := range outValues {
		outpt := Outpoint{TxHash: txHash, OutIndex: int32(i)}
		var outRanges []SatoshiRange
		remaining := val

		for remaining > 0 {
			if cur.Empty() {
				if idx >= len(inRanges) {
					return nil, &TxError{TxHash: txHash, Err: ErrOutputsExceedInputs}
				}
				cur = inRanges[idx]
				idx++
			}

			take := cur.Len()
			if take > remaining {
				take = remaining
			}
			piece := SatoshiRange{Lo: cur.Lo, Hi: cur.Lo + take}
			cur.Lo += take
			remaining -= take

			outRanges = append(outRanges, piece)
			t.inverse.insert(piece, outpt)
			t.traceDebug(piece, outpt, isCoinbase)
		}

		t.forward.set(outpt, outRanges)
	}

	var leftover []SatoshiRange
	if !cur.Empty() {
		leftover = append(leftover, cur)
	}
	leftover = append(leftover, inRanges[idx:]...)

	if !isCoinbase {
		return leftover, nil
	}

	for _, r := range leftover {
		sink := Outpoint{TxHash: txHash, OutIndex: CoinbaseSinkIndex}
		t.inverse.insert(r, sink)
		fmt.Fprintf(t.DebugWriter, "destroyed: %s satoshis swept into coinbase sink %s\n", r, sink)
		if t.OnDestroyed != nil {
			t.OnDestroyed(txHash, r)
		}
	}
	return nil, nil
}

// traceDebug emits a debug line for every traced satoshi that falls
// within piece, per spec.md §6's fts.debug.target contract.
func (t *Tracker) traceDebug(piece SatoshiRange, outpt Outpoint, isCoinbase bool) {
	if len(t.debugTargets) == 0 {
		return
	}
	for sat := range t.debugTargets {
		if piece.Contains(sat) {
			fmt.Fprintf(t.DebugWriter, "debug:%d went to %s:%t offset:%d\n",
				sat, outpt, isCoinbase, sat-piece.Lo)
		}
	}
}

// Lookup answers spec.md §4.5's find(satoshi): which outpoint currently
// owns this satoshi, live UTXO or coinbase sink. ok is false if the
// satoshi has never been minted.
func (t *Tracker) Lookup(satoshi uint64) (Outpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if satoshi >= t.totalMinted {
		return Outpoint{}, false
	}
	item, ok := t.inverse.locate(satoshi)
	if !ok {
		return Outpoint{}, false
	}
	return item.Owner, true
}

// IntegrityFault describes a defect found while walking the inverse map.
type IntegrityFault struct {
	Kind string // "hole" or "overlap"
	Prev SatoshiRange
	Next SatoshiRange
}

// Integrity walks the inverse map in key order verifying that adjacent
// ranges abut (spec.md §4.6). It returns every fault found and the
// final Hi reached, which should equal the total satoshis minted.
func (t *Tracker) Integrity() ([]IntegrityFault, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var faults []IntegrityFault
	var prev SatoshiRange
	first := true

	t.inverse.ascend(func(item rangeItem) bool {
		if !first {
			switch {
			case prev.Hi < item.Lo:
				faults = append(faults, IntegrityFault{Kind: "hole", Prev: prev, Next: item.SatoshiRange})
			case prev.Hi > item.Lo:
				faults = append(faults, IntegrityFault{Kind: "overlap", Prev: prev, Next: item.SatoshiRange})
			}
		}
		prev = item.SatoshiRange
		first = false
		return true
	})

	return faults, prev.Hi
}

// Snapshot is a point-in-time, lock-protected read of the tracker's
// summary counters, safe to call from the HTTP API while ingestion
// continues on its own goroutine.
type Snapshot struct {
	Height      uint64
	UTXOCount   int
	RangeCount  int
	TotalMinted uint64
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Height:      t.curHeight,
		UTXOCount:   t.forward.len(),
		RangeCount:  t.inverse.len(),
		TotalMinted: t.totalMinted,
	}
}

// ForEachUTXO iterates every live UTXO and its ranges under the
// tracker's mutex; iteration order is unspecified. fn must not call
// back into the Tracker.
func (t *Tracker) ForEachUTXO(fn func(Outpoint, []SatoshiRange)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forward.forEach(fn)
}
