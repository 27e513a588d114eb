package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pos-edge/internal/metrics"
	"pos-edge/internal/ticket"
)

type printTestRequest struct {
	PrinterID string `json:"printerId" binding:"required"`
}

// PostPrintTest returns a handler sending a test ticket in dialect d. Transport
// failures are reported as 400 and never retried.
func (h *Handler) PostPrintTest(d ticket.Dialect) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req printTestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "printerId is required"})
			return
		}

		p, err := h.Store.Printer(req.PrinterID)
		if err != nil {
			fail(c, err)
			return
		}

		gatewayID := ""
		if cfg := h.Store.ReadConfig(); cfg != nil {
			gatewayID = cfg.GatewayID
		}
		addr := net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
		data, err := ticket.Encode(d, ticket.TestTicket(d, p.Name, addr, gatewayID, h.now()))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// A client disconnect must not cut a job off mid-stream; the send
		// timeout bounds it instead.
		if err := h.Sender.Send(context.WithoutCancel(c.Request.Context()), p.IP, p.Port, data, h.Config.Printer.SendTimeout); err != nil {
			metrics.PrintJobsTotal.WithLabelValues(string(d), "test", "error").Inc()
			log.Warn().Err(err).Str("printer_id", p.ID).Str("addr", addr).Msg("test print failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		metrics.PrintJobsTotal.WithLabelValues(string(d), "test", "ok").Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "printerId": p.ID, "dialect": d, "bytes": len(data)})
	}
}
