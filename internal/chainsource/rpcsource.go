// Package chainsource is the external collaborator spec.md treats as
// out of scope for the core: it parses blocks and transactions from a
// Bitcoin Core-compatible node over JSON-RPC and drives the tracker's
// consumed-callback surface (§6) in strict blockchain order.
package chainsource

import (
	"context"
	"fmt"
	"log"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"github.com/rawblock/fts-tracker/internal/ledger"
)

// Config holds the node connection parameters.
type Config struct {
	Host string
	User string
	Pass string
}

// Dial opens an RPC connection to a Bitcoin Core-compatible node.
func Dial(cfg Config) (*rpcclient.Client, error) {
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   true,
	}
	client, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("chainsource: dial: %w", err)
	}
	if _, err := client.GetBlockCount(); err != nil {
		client.Shutdown()
		return nil, fmt.Errorf("chainsource: verify connection: %w", err)
	}
	return client, nil
}

// Ingestor replays a chain, height by height, through a ledger.Tracker.
//
// Heights crossing the RPC boundary follow two different conventions:
// btcd/Bitcoin Core number the genesis block 0, while spec.md §3/§4.4
// number it 1 (`subsidyBefore(h) = (h-1)*5e9`, genesis h=1 mints
// `[0, 5e9)`). Ingestor.rpcStartHeight and every argument to the RPC
// client are in the 0-indexed node convention; every height handed to
// the tracker (StartBlock, OnBlockDone) is converted to the 1-indexed
// tracker convention with a `+1` at the boundary, here and nowhere else.
type Ingestor struct {
	rpc            *rpcclient.Client
	tracker        *ledger.Tracker
	rpcStartHeight int64

	// OnBlockDone, if set, fires after every EndBlock with the
	// tracker-convention (1-indexed) height and chain tip just
	// processed — used by the real-time progress hub.
	OnBlockDone func(height, tip int64)
}

// New creates an Ingestor. startHeight is in the tracker's 1-indexed
// convention (1 means genesis); it is converted to the node's 0-indexed
// RPC convention internally. Values below 1 are clamped to 1.
func New(rpc *rpcclient.Client, tracker *ledger.Tracker, startHeight uint64) *Ingestor {
	if startHeight < 1 {
		startHeight = 1
	}
	return &Ingestor{rpc: rpc, tracker: tracker, rpcStartHeight: int64(startHeight) - 1}
}

// Run drives the tracker from startHeight through the current chain
// tip, or until the tracker's -a/--atBlock cutoff fires. It returns nil
// on a natural end-of-chain or cutoff stop; a non-nil error is fatal
// per spec.md §7 and should terminate the process after logging.
func (in *Ingestor) Run(ctx context.Context) error {
	rpcTip, err := in.rpc.GetBlockCount()
	if err != nil {
		return fmt.Errorf("chainsource: get block count: %w", err)
	}
	trackerTip := uint64(rpcTip) + 1

	for rpcHeight := in.rpcStartHeight; rpcHeight <= rpcTip; rpcHeight++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		trackerHeight := uint64(rpcHeight) + 1

		if stop := in.tracker.StartBlock(trackerHeight, trackerTip); stop {
			log.Printf("[chainsource] cutoff reached at height %d, stopping", trackerHeight)
			return nil
		}

		if err := in.ingestBlock(rpcHeight); err != nil {
			return err
		}

		if err := in.tracker.EndBlock(); err != nil {
			return fmt.Errorf("chainsource: end block %d: %w", trackerHeight, err)
		}

		if in.OnBlockDone != nil {
			in.OnBlockDone(int64(trackerHeight), int64(trackerTip))
		}

		if trackerHeight%1000 == 0 {
			log.Printf("[chainsource] processed block %d / %d", trackerHeight, trackerTip)
		}
	}
	return nil
}

func (in *Ingestor) ingestBlock(height int64) error {
	hash, err := in.rpc.GetBlockHash(height)
	if err != nil {
		return fmt.Errorf("chainsource: get block hash %d: %w", height, err)
	}

	block, err := in.rpc.GetBlockVerboseTx(hash)
	if err != nil {
		return fmt.Errorf("chainsource: get block %d: %w", height, err)
	}

	for _, rawTx := range block.Tx {
		txHash, err := chainhash.NewHashFromStr(rawTx.Txid)
		if err != nil {
			return fmt.Errorf("chainsource: parse txid %q: %w", rawTx.Txid, err)
		}

		in.tracker.StartTX(*txHash)

		for _, vin := range rawTx.Vin {
			if vin.IsCoinBase() {
				continue
			}
			prevHash, err := chainhash.NewHashFromStr(vin.Txid)
			if err != nil {
				return fmt.Errorf("chainsource: parse prev txid %q: %w", vin.Txid, err)
			}
			if err := in.tracker.Edge(*prevHash, int32(vin.Vout)); err != nil {
				return err
			}
		}

		for _, vout := range rawTx.Vout {
			amt, err := btcutil.NewAmount(vout.Value)
			if err != nil {
				return fmt.Errorf("chainsource: parse output value %v: %w", vout.Value, err)
			}
			in.tracker.EndOutput(uint64(amt))
		}

		if err := in.tracker.EndTX(); err != nil {
			return fmt.Errorf("chainsource: end tx %s: %w", rawTx.Txid, err)
		}
	}
	return nil
}
