package ledger

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// CoinbaseSinkIndex is the sentinel output index used to key destroyed
// ranges (fees or over-burned coinbase inputs swept with nowhere left
// to go) in the inverse map. It never appears in the forward map.
const CoinbaseSinkIndex int32 = -1

// Outpoint identifies a specific transaction output: a 32-byte tx hash
// plus an output index. chainhash.Hash is a fixed [32]byte array, so
// comparing and copying Outpoints never truncates the hash the way the
// original C++ source's memcpy-based Outpoint did.
type Outpoint struct {
	TxHash   chainhash.Hash
	OutIndex int32
}

// Less orders Outpoints lexicographically on the hash bytes, then by
// output index, a total order over Outpoints. The forward map is a
// hash map and does not use this order.
func (o Outpoint) Less(other Outpoint) bool {
	if c := bytes.Compare(o.TxHash[:], other.TxHash[:]); c != 0 {
		return c < 0
	}
	return o.OutIndex < other.OutIndex
}

// IsCoinbaseSink reports whether this outpoint is a destroyed-range
// sentinel rather than a live UTXO.
func (o Outpoint) IsCoinbaseSink() bool {
	return o.OutIndex == CoinbaseSinkIndex
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxHash.String(), o.OutIndex)
}
