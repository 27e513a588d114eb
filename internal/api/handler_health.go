package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// GetHealth reports pairing state and where the gateway can be reached.
func (h *Handler) GetHealth(c *gin.Context) {
	cfg := h.Store.ReadConfig()
	pending, err := h.Store.OutboxLen()
	if err != nil {
		log.Warn().Err(err).Msg("could not count outbox events")
	}

	resp := gin.H{
		"ok":            true,
		"bound":         cfg.Bound(),
		"gatewayId":     nil,
		"restaurantId":  nil,
		"boundAt":       nil,
		"cloudBaseUrl":  h.cloudBaseURL(),
		"lanIp":         h.lanIP(),
		"port":          h.Config.Server.Port,
		"printers":      len(h.Store.Printers()),
		"outboxPending": pending,
		"printQueue":    h.Jobs != nil,
	}
	if cfg != nil {
		resp["gatewayId"] = nullable(cfg.GatewayID)
		resp["restaurantId"] = nullable(cfg.RestaurantID)
		resp["boundAt"] = nullable(cfg.BoundAt)
	}
	c.JSON(http.StatusOK, resp)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
