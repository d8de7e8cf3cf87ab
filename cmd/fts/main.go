package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/uuid"

	"github.com/rawblock/fts-tracker/internal/api"
	"github.com/rawblock/fts-tracker/internal/chainsource"
	"github.com/rawblock/fts-tracker/internal/ledger"
	"github.com/rawblock/fts-tracker/internal/store"
	"github.com/rawblock/fts-tracker/internal/targets"
)

// benchmarkLookups is the third-pass random-lookup benchmark size
// spec.md §6/§9 requires to validate the inverse map's O(log n) claim.
const benchmarkLookups = 1_000_000

func main() {
	var (
		atBlock         = flag.Int64("atBlock", -1, "only process blocks with height < atBlock (default -1: process all)")
		rpcHost         = flag.String("rpc-host", getEnvOrDefault("BTC_RPC_HOST", "localhost:8332"), "Bitcoin Core-compatible RPC host:port")
		rpcUser         = flag.String("rpc-user", os.Getenv("BTC_RPC_USER"), "RPC username (or BTC_RPC_USER)")
		rpcPass         = flag.String("rpc-pass", os.Getenv("BTC_RPC_PASS"), "RPC password (or BTC_RPC_PASS)")
		startHeight     = flag.Uint64("start-height", 1, "first block height to replay, 1-indexed (1 = genesis)")
		targetFile      = flag.String("target-file", "fts.target", "path to the satoshi lookup target file")
		debugTargetFile = flag.String("debug-target-file", "fts.debug.target", "path to the satoshi trace target file")
		httpAddr        = flag.String("http-addr", "", "serve the HTTP status/lookup API on this address, e.g. :5339 (empty: no API)")
		databaseURL     = flag.String("database-url", os.Getenv("DATABASE_URL"), "optional Postgres connection string for checkpoint persistence (or DATABASE_URL)")
	)
	flag.Int64Var(atBlock, "a", -1, "shorthand for -atBlock")
	flag.Parse()

	log.Println("Starting fts-tracker (First-To-Spend satoshi range ledger)...")

	if *rpcUser == "" {
		log.Fatal("FATAL: RPC username not set (-rpc-user or BTC_RPC_USER)")
	}
	if *rpcPass == "" {
		log.Fatal("FATAL: RPC password not set (-rpc-pass or BTC_RPC_PASS)")
	}

	rpc, err := chainsource.Dial(chainsource.Config{Host: *rpcHost, User: *rpcUser, Pass: *rpcPass})
	if err != nil {
		log.Fatalf("FATAL: failed to connect to Bitcoin RPC: %v", err)
	}
	defer rpc.Shutdown()

	tracker := ledger.New(ledger.DefaultSubsidySchedule, *atBlock)
	tracker.DebugWriter = os.Stdout
	tracker.FirstPassStart = time.Now()

	if sats, err := targets.Load(*debugTargetFile); err != nil {
		log.Printf("Warning: failed to read debug target file %s: %v", *debugTargetFile, err)
	} else if len(sats) > 0 {
		tracker.SetDebugTargets(sats)
		log.Printf("Tracing %d satoshi(s) from %s", len(sats), *debugTargetFile)
	}

	runID := uuid.NewString()

	var ckStore *store.CheckpointStore
	if *databaseURL != "" {
		ckStore, err = store.Connect(*databaseURL)
		if err != nil {
			log.Printf("Warning: checkpoint store unavailable, continuing without persistence: %v", err)
			ckStore = nil
		} else {
			defer ckStore.Close()
			if err := ckStore.InitSchema(); err != nil {
				log.Printf("Warning: checkpoint schema init failed: %v", err)
			}
			tracker.OnDestroyed = func(coinbaseTx chainhash.Hash, r ledger.SatoshiRange) {
				ctx := context.Background()
				if err := ckStore.SaveDestroyedRange(ctx, runID, coinbaseTx.String(), r.Lo, r.Hi); err != nil {
					log.Printf("Warning: failed to save destroyed range: %v", err)
				}
			}
		}
	}

	var wsHub *api.Hub
	if *httpAddr != "" {
		wsHub = api.NewHub()
		go wsHub.Run()
	}

	ingestor := chainsource.New(rpc, tracker, *startHeight)
	broadcast := api.BroadcastProgress(wsHub)
	ingestor.OnBlockDone = func(height, tip int64) {
		snap := tracker.Snapshot()
		if wsHub != nil {
			broadcast(snap)
		}
		if ckStore != nil && height%1000 == 0 {
			ctx := context.Background()
			if err := ckStore.SaveCheckpoint(ctx, runID, snap.Height, snap.UTXOCount, snap.RangeCount, snap.TotalMinted, height == tip); err != nil {
				log.Printf("Warning: failed to save checkpoint: %v", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Signal received, stopping ingestion after the current block...")
		cancel()
	}()

	if *httpAddr != "" {
		r := api.SetupRouter(tracker, ckStore, wsHub, runID)
		go func() {
			log.Printf("API listening on %s", *httpAddr)
			if err := r.Run(*httpAddr); err != nil {
				log.Printf("API server stopped: %v", err)
			}
		}()
	}

	tracker.SecondPassStart = time.Now()
	if err := ingestor.Run(ctx); err != nil {
		log.Fatalf("FATAL: ingestion failed: %v", err)
	}
	passesDone := time.Now()

	snap := tracker.Snapshot()

	// Third pass: benchmark the inverse map's predecessor lookup with a
	// large batch of random point queries (spec.md §6/§9).
	thirdPassStart := time.Now()
	if snap.TotalMinted > 0 {
		for i := 0; i < benchmarkLookups; i++ {
			tracker.Lookup(rand.Uint64N(snap.TotalMinted))
		}
	}
	thirdPassDone := time.Now()

	if ckStore != nil {
		ctx := context.Background()
		if err := ckStore.SaveCheckpoint(ctx, runID, snap.Height, snap.UTXOCount, snap.RangeCount, snap.TotalMinted, true); err != nil {
			log.Printf("Warning: failed to save final checkpoint: %v", err)
		}
	}

	faults, _ := tracker.Integrity()
	if len(faults) > 0 {
		log.Printf("integrity: %d fault(s) found", len(faults))
		for _, f := range faults {
			log.Printf("integrity fault: kind=%s prev=%s next=%s", f.Kind, f.Prev, f.Next)
		}
	}

	fmt.Printf("UTXO count: %d\n", snap.UTXOCount)
	fmt.Printf("Range count: %d\n", snap.RangeCount)
	fmt.Printf("first pass done in %.3f seconds\n", passesDone.Sub(tracker.FirstPassStart).Seconds())
	fmt.Printf("second pass done in %.3f seconds\n", passesDone.Sub(tracker.SecondPassStart).Seconds())
	fmt.Printf("third pass done in %.3f seconds\n", thirdPassDone.Sub(thirdPassStart).Seconds())

	sats, err := targets.Load(*targetFile)
	if err != nil {
		log.Printf("Warning: failed to read target file %s: %v", *targetFile, err)
	}
	for _, sat := range sats {
		outpt, ok := tracker.Lookup(sat)
		if !ok {
			fmt.Printf("%d  0\n", sat)
			continue
		}
		fmt.Printf("%d %s %d\n", sat, outpt.TxHash.String(), outpt.OutIndex)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
