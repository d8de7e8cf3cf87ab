package ledger

import "github.com/google/btree"

// btreeDegree follows google/btree's own recommendation of a moderate
// branching factor for in-memory workloads; higher degrees trade
// shallower trees for more per-node memmove on insert/delete.
const btreeDegree = 32

// rangeItem is the btree.Item stored in the inverse map: a disjoint
// SatoshiRange plus the Outpoint that currently owns it (or a coinbase
// sink sentinel for destroyed ranges).
type rangeItem struct {
	SatoshiRange
	Owner Outpoint
}

// Less orders items by Lo only. Ranges stored in the tree are always
// disjoint, so Lo alone is a total order; two items compare equal to
// the tree (and are treated as the same key) iff their Lo matches,
// which is exactly what erase(range) needs to locate the entry that
// was inserted for that range.
func (r rangeItem) Less(than btree.Item) bool {
	return r.Lo < than.(rangeItem).Lo
}

// inverseMap is the satoshi-range -> Outpoint side of the ledger,
// keyed by range and ordered by Lo so that locate(s) can run in
// O(log n) via a predecessor search, as spec.md §9 requires.
type inverseMap struct {
	tree *btree.BTree
	n    int
}

func newInverseMap() *inverseMap {
	return &inverseMap{tree: btree.New(btreeDegree)}
}

// insert records that owner now holds r. Caller guarantees r does not
// overlap any range already present.
func (m *inverseMap) insert(r SatoshiRange, owner Outpoint) {
	if m.tree.ReplaceOrInsert(rangeItem{SatoshiRange: r, Owner: owner}) == nil {
		m.n++
	}
}

// erase removes the range previously inserted with this Lo.
func (m *inverseMap) erase(r SatoshiRange) {
	if m.tree.Delete(rangeItem{SatoshiRange: r}) != nil {
		m.n--
	}
}

// locate implements spec.md §4.2's locate(s): find the first stored
// range with Lo > s, step back one, and verify it covers s. google/btree
// gives this directly via DescendLessOrEqual, which walks ranges with
// Lo <= s in descending order; the first one visited is the unique
// candidate (the step-back result), and if none exists there is no
// range with Lo <= s at all (the "before the first element" case).
func (m *inverseMap) locate(s uint64) (rangeItem, bool) {
	var found rangeItem
	ok := false
	m.tree.DescendLessOrEqual(rangeItem{SatoshiRange: SatoshiRange{Lo: s}}, func(item btree.Item) bool {
		found = item.(rangeItem)
		ok = true
		return false // stop after the first (largest Lo <= s)
	})
	if !ok || !found.Contains(s) {
		return rangeItem{}, false
	}
	return found, true
}

// ascend walks every stored range in ascending Lo order.
func (m *inverseMap) ascend(fn func(rangeItem) bool) {
	m.tree.Ascend(func(item btree.Item) bool {
		return fn(item.(rangeItem))
	})
}

func (m *inverseMap) len() int {
	return m.n
}
