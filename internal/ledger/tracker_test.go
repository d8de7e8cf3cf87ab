package ledger

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

func hashFromByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

// runBlock drives one block of events through a Tracker. Each tx is
// {hash, inputs, outputs}; inputs reference (txHash, outIndex) pairs,
// with a nil inputs slice meaning "this is the coinbase".
type txSpec struct {
	hash    chainhash.Hash
	inputs  []Outpoint
	outputs []uint64
}

func runBlock(t *testing.T, tr *Tracker, height uint64, txs []txSpec) {
	t.Helper()
	if stop := tr.StartBlock(height, height); stop {
		t.Fatalf("unexpected cutoff at height %d", height)
	}
	for _, tx := range txs {
		tr.StartTX(tx.hash)
		for _, in := range tx.inputs {
			if err := tr.Edge(in.TxHash, in.OutIndex); err != nil {
				t.Fatalf("edge: %v", err)
			}
		}
		for _, v := range tx.outputs {
			tr.EndOutput(v)
		}
		if err := tr.EndTX(); err != nil {
			t.Fatalf("endTX: %v", err)
		}
	}
	if err := tr.EndBlock(); err != nil {
		t.Fatalf("endBlock: %v", err)
	}
}

// Scenario 1: single block, coinbase only (spec.md §8, scenario 1),
// using a toy 50-satoshi subsidy for clarity as the spec suggests.
func TestCoinbaseOnly(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)

	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})

	owner, ok := tr.Lookup(0)
	if !ok || owner != (Outpoint{TxHash: cb1, OutIndex: 0}) {
		t.Fatalf("find(0) = %v, %v", owner, ok)
	}
	owner, ok = tr.Lookup(49)
	if !ok || owner != (Outpoint{TxHash: cb1, OutIndex: 0}) {
		t.Fatalf("find(49) = %v, %v", owner, ok)
	}
	if _, ok := tr.Lookup(50); ok {
		t.Fatalf("find(50) should be none")
	}

	snap := tr.Snapshot()
	if snap.UTXOCount != 1 || snap.RangeCount != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

// Scenario 2: spend-all (spec.md §8, scenario 2).
func TestSpendAll(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)
	cb2 := hashFromByte(2)
	txA := hashFromByte(3)

	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})
	runBlock(t, tr, 2, []txSpec{
		{hash: cb2, outputs: []uint64{50}},
		{hash: txA, inputs: []Outpoint{{TxHash: cb1, OutIndex: 0}}, outputs: []uint64{20, 30}},
	})

	snap := tr.Snapshot()
	if snap.UTXOCount != 3 {
		t.Fatalf("expected 3 live UTXOs, got %d", snap.UTXOCount)
	}

	owner, ok := tr.Lookup(25)
	if !ok || owner != (Outpoint{TxHash: txA, OutIndex: 1}) {
		t.Fatalf("find(25) = %v, %v", owner, ok)
	}

	ranges, ok := tr.forward.get(Outpoint{TxHash: cb2, OutIndex: 0})
	if !ok || len(ranges) != 1 || ranges[0] != (SatoshiRange{50, 100}) {
		t.Fatalf("cb2 ranges = %v", ranges)
	}
}

// Scenario 3: fee swept to coinbase (spec.md §8, scenario 3).
func TestFeeToCoinbase(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)
	cb2 := hashFromByte(2)
	txA := hashFromByte(3)
	cb3 := hashFromByte(4)
	txB := hashFromByte(5)

	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})
	runBlock(t, tr, 2, []txSpec{
		{hash: cb2, outputs: []uint64{50}},
		{hash: txA, inputs: []Outpoint{{TxHash: cb1, OutIndex: 0}}, outputs: []uint64{20, 30}},
	})
	runBlock(t, tr, 3, []txSpec{
		{hash: cb3, outputs: []uint64{55}},
		{hash: txB, inputs: []Outpoint{{TxHash: txA, OutIndex: 0}}, outputs: []uint64{15}},
	})

	ranges, ok := tr.forward.get(Outpoint{TxHash: cb3, OutIndex: 0})
	if !ok {
		t.Fatalf("cb3 output missing")
	}
	want := []SatoshiRange{{100, 150}, {15, 20}}
	if len(ranges) != len(want) {
		t.Fatalf("cb3 ranges = %v, want %v", ranges, want)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("cb3 ranges[%d] = %v, want %v", i, ranges[i], want[i])
		}
	}
}

// Scenario 4: split across many outputs, checking FIFO locality (P4).
func TestSplitAcrossManyOutputs(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 100}, -1)
	cb1 := hashFromByte(1)
	txA := hashFromByte(2)

	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{100}}})
	runBlock(t, tr, 2, []txSpec{
		{hash: hashFromByte(9), outputs: []uint64{100}},
		{hash: txA, inputs: []Outpoint{{TxHash: cb1, OutIndex: 0}}, outputs: []uint64{10, 10, 10, 70}},
	})

	want := []SatoshiRange{{0, 10}, {10, 20}, {20, 30}, {30, 100}}
	for i, w := range want {
		ranges, ok := tr.forward.get(Outpoint{TxHash: txA, OutIndex: int32(i)})
		if !ok || len(ranges) != 1 || ranges[0] != w {
			t.Fatalf("output %d ranges = %v, want [%v]", i, ranges, w)
		}
	}
}

// Scenario 5: the -a/--atBlock cutoff stops before any event of the
// cutoff block is processed.
func TestCutoff(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, 2)
	cb1 := hashFromByte(1)

	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})

	if stop := tr.StartBlock(2, 2); !stop {
		t.Fatalf("expected cutoff at height 2")
	}

	snap := tr.Snapshot()
	if snap.UTXOCount != 1 || snap.TotalMinted != 50 {
		t.Fatalf("state changed after cutoff: %+v", snap)
	}
}

// Scenario 6: an edge referencing an unknown outpoint aborts with a
// fatal error and leaves prior state untouched.
func TestMissingUTXO(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)
	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})

	tr.StartTX(hashFromByte(9))
	err := tr.Edge(hashFromByte(250), 0)
	if err == nil {
		t.Fatalf("expected error for unknown outpoint")
	}

	snap := tr.Snapshot()
	if snap.UTXOCount != 1 {
		t.Fatalf("state should be unchanged after a failed edge: %+v", snap)
	}
}

// Outputs-exceeding-inputs must fail with ErrOutputsExceedInputs.
func TestOutputsExceedInputs(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)
	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})

	if stop := tr.StartBlock(2, 2); stop {
		t.Fatal("unexpected cutoff")
	}
	tr.StartTX(hashFromByte(2))
	if err := tr.Edge(cb1, 0); err != nil {
		t.Fatalf("edge: %v", err)
	}
	tr.EndOutput(1000) // far more than the 50 available
	err := tr.EndTX()
	if !errors.Is(err, ErrOutputsExceedInputs) {
		t.Fatalf("expected outputs-exceed-inputs error, got %v", err)
	}
}

// Zero-value outputs are recorded with an empty range list but remain
// present in the forward map.
func TestZeroValueOutput(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 50}, -1)
	cb1 := hashFromByte(1)
	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{50}}})

	runBlock(t, tr, 2, []txSpec{
		{hash: hashFromByte(9), outputs: []uint64{50}},
		{hash: hashFromByte(3), inputs: []Outpoint{{TxHash: cb1, OutIndex: 0}}, outputs: []uint64{0, 50}},
	})

	ranges, ok := tr.forward.get(Outpoint{TxHash: hashFromByte(3), OutIndex: 0})
	if !ok {
		t.Fatal("zero-value output should still be present in forward map")
	}
	if len(ranges) != 0 {
		t.Fatalf("zero-value output should have no ranges, got %v", ranges)
	}
}

// P1/P6: integrity check reports no faults and the correct total after
// a longer run, and every minted satoshi resolves via Lookup.
func TestIntegrityAndCompleteness(t *testing.T) {
	tr := New(DefaultSubsidySchedule, -1)
	var prevOut Outpoint
	var prevValue uint64
	const fee = uint64(10)

	for h := uint64(1); h <= 5; h++ {
		cb := hashFromByte(byte(h))
		var txs []txSpec
		if h == 1 {
			txs = []txSpec{{hash: cb, outputs: []uint64{5_000_000_000}}}
			prevOut = Outpoint{TxHash: cb, OutIndex: 0}
			prevValue = 5_000_000_000
		} else {
			spendHash := hashFromByte(byte(100 + h))
			outValue := prevValue - fee
			txs = []txSpec{
				{hash: cb, outputs: []uint64{5_000_000_000 + fee}},
				{hash: spendHash, inputs: []Outpoint{prevOut}, outputs: []uint64{outValue}},
			}
			prevOut = Outpoint{TxHash: spendHash, OutIndex: 0}
			prevValue = outValue
		}
		runBlock(t, tr, h, txs)
	}

	faults, finalHi := tr.Integrity()
	if len(faults) != 0 {
		t.Fatalf("unexpected integrity faults: %+v", faults)
	}
	if finalHi != 5*5_000_000_000 {
		t.Fatalf("final Hi = %d, want %d", finalHi, 5*5_000_000_000)
	}

	for s := uint64(0); s < finalHi; s += 999_999_937 { // sparse sample, prime stride
		if _, ok := tr.Lookup(s); !ok {
			t.Fatalf("lookup(%d) should resolve, total minted = %d", s, finalHi)
		}
	}
	if _, ok := tr.Lookup(finalHi); ok {
		t.Fatalf("lookup(%d) should be out of range", finalHi)
	}
}

// Round-trip: a freshly created output's satoshis resolve back to it
// immediately.
func TestRoundTrip(t *testing.T) {
	tr := New(FlatSubsidy{Amount: 1000}, -1)
	cb1 := hashFromByte(1)
	runBlock(t, tr, 1, []txSpec{{hash: cb1, outputs: []uint64{300, 700}}})

	for _, s := range []uint64{0, 150, 299, 300, 500, 999} {
		owner, ok := tr.Lookup(s)
		if !ok {
			t.Fatalf("lookup(%d) not found", s)
		}
		want := int32(0)
		if s >= 300 {
			want = 1
		}
		if owner.OutIndex != want || owner.TxHash != cb1 {
			t.Fatalf("lookup(%d) = %v, want output %d", s, owner, want)
		}
	}
}
