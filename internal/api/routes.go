package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/fts-tracker/internal/ledger"
	"github.com/rawblock/fts-tracker/internal/store"
)

// APIHandler exposes the tracker's state to read-only HTTP clients. It
// never drives ingestion itself — every handler goes through Tracker's
// own mutex-protected accessors (Snapshot, Lookup, Integrity).
type APIHandler struct {
	tracker *ledger.Tracker
	ckStore *store.CheckpointStore
	wsHub   *Hub
	runID   string
}

// SetupRouter builds the gin engine serving the tracker's API. ckStore
// may be nil (checkpoint persistence is optional); wsHub may be nil (no
// progress stream).
func SetupRouter(tracker *ledger.Tracker, ckStore *store.CheckpointStore, wsHub *Hub, runID string) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		tracker: tracker,
		ckStore: ckStore,
		wsHub:   wsHub,
		runID:   runID,
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/status", handler.handleStatus)
		pub.GET("/lookup/:satoshi", handler.handleLookup)
		pub.GET("/integrity", handler.handleIntegrity)
		if wsHub != nil {
			pub.GET("/stream", wsHub.Subscribe)
		}
		if ckStore != nil {
			pub.GET("/checkpoints", handler.handleCheckpoints)
		}
	}

	// Everything above is read-only and unauthenticated by default; a
	// deployment that exposes this beyond localhost should put it behind
	// AuthMiddleware and a RateLimiter the way the protected group below
	// demonstrates, even though the tracker itself has nothing to protect
	// against mutation through this API.
	protected := r.Group("/api/v1")
	protected.Use(AuthMiddleware())
	protected.Use(NewRateLimiter(60, 10).Middleware())
	{
		protected.GET("/integrity/full", handler.handleIntegrityFull)
	}

	return r
}

// handleHealth is a liveness probe: it never touches the tracker's mutex.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "fts-tracker",
	})
}

// handleStatus reports the tracker's current counters.
func (h *APIHandler) handleStatus(c *gin.Context) {
	snap := h.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"height":      snap.Height,
		"utxoCount":   snap.UTXOCount,
		"rangeCount":  snap.RangeCount,
		"totalMinted": snap.TotalMinted,
		"runId":       h.runID,
	})
}

// handleLookup answers find(satoshi): GET /api/v1/lookup/:satoshi.
func (h *APIHandler) handleLookup(c *gin.Context) {
	satoshi, err := strconv.ParseUint(c.Param("satoshi"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "satoshi must be a non-negative integer"})
		return
	}

	outpt, ok := h.tracker.Lookup(satoshi)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "satoshi has not been minted yet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"satoshi":    satoshi,
		"txHash":     outpt.TxHash.String(),
		"outIndex":   outpt.OutIndex,
		"isCoinbase": outpt.IsCoinbaseSink(),
	})
}

// handleIntegrity reports only the fault count and final Hi, cheap enough
// to poll frequently. handleIntegrityFull returns every fault and is
// gated behind auth since a pathological chain state could make the
// payload large.
func (h *APIHandler) handleIntegrity(c *gin.Context) {
	faults, totalHi := h.tracker.Integrity()
	c.JSON(http.StatusOK, gin.H{
		"faultCount": len(faults),
		"totalHi":    totalHi,
	})
}

// handleCheckpoints returns the last 100 recorded ingestion checkpoints
// for this run, only registered when a checkpoint store is configured.
func (h *APIHandler) handleCheckpoints(c *gin.Context) {
	cps, err := h.ckStore.RecentCheckpoints(c.Request.Context(), h.runID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load checkpoints", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"checkpoints": cps})
}

func (h *APIHandler) handleIntegrityFull(c *gin.Context) {
	faults, totalHi := h.tracker.Integrity()
	c.JSON(http.StatusOK, gin.H{
		"faults":  faults,
		"totalHi": totalHi,
	})
}

// BroadcastProgress sends a per-block progress event via the WebSocket
// hub. Wired as the Ingestor's OnBlockDone callback in cmd/fts.
func BroadcastProgress(wsHub *Hub) func(snap ledger.Snapshot) {
	return func(snap ledger.Snapshot) {
		wsHub.BroadcastJSON(gin.H{
			"type":        "progress",
			"height":      snap.Height,
			"utxoCount":   snap.UTXOCount,
			"rangeCount":  snap.RangeCount,
			"totalMinted": snap.TotalMinted,
		})
	}
}
