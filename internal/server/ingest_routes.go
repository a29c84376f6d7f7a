package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/agentscan/internal/ingest"
	"github.com/mbd888/agentscan/internal/logging"
)

// AttachPipeline mounts the internal event delivery endpoints. An
// external delivery job (backfills, a sidecar subscriber) POSTs
// decoded events here; handlers are replay-idempotent so
// at-least-once delivery is fine. The built-in watcher feeds the
// pipeline directly and does not go through these routes.
//
// Call before Run.
func (s *Server) AttachPipeline(p *ingest.Pipeline) {
	events := s.router.Group("/internal/events")

	events.POST("/registered", func(c *gin.Context) {
		var ev ingest.RegisteredEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}
		s.deliver(c, "registered", p.HandleRegistered(c.Request.Context(), &ev))
	})

	events.POST("/ownership", func(c *gin.Context) {
		var ev ingest.OwnershipTransferEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}
		s.deliver(c, "ownership", p.HandleOwnershipTransfer(c.Request.Context(), &ev))
	})

	events.POST("/feedback", func(c *gin.Context) {
		var ev ingest.FeedbackEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}
		s.deliver(c, "feedback", p.HandleFeedback(c.Request.Context(), &ev))
	})

	events.POST("/transfer", func(c *gin.Context) {
		var ev ingest.TransferEvent
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
			return
		}
		s.deliver(c, "transfer", p.HandleTransfer(c.Request.Context(), &ev))
	})
}

// deliver maps a handler result to an HTTP status. Store failures
// return 500 so the delivery layer retries the event.
func (s *Server) deliver(c *gin.Context, kind string, err error) {
	if err != nil {
		logging.L(c.Request.Context()).Error("event ingestion failed", "event", kind, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
