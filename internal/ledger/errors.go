package ledger

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ErrOutputsExceedInputs signals that a transaction's outputs demanded
// more satoshis than its inputs carried — corrupted or out-of-order
// input data. Fatal: the caller should abort the run.
var ErrOutputsExceedInputs = errors.New("tx outputs exceed inputs")

// ErrUnknownOutpoint signals that an edge referenced an outpoint not
// present in the forward map. Fatal for the same reason.
var ErrUnknownOutpoint = errors.New("edge references unknown outpoint")

// TxError wraps a ledger error with the transaction hash it occurred
// in, so callers can produce a diagnostic naming the offending tx
// without the ledger package depending on any logging framework.
type TxError struct {
	TxHash chainhash.Hash
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s: %v", e.TxHash, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
