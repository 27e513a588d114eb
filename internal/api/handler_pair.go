package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pos-edge/internal/cloud"
	"pos-edge/internal/model"
)

type pairClaimRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name"`
}

// PostPairClaim exchanges a pairing code for gateway credentials and stores
// them.
func (h *Handler) PostPairClaim(c *gin.Context) {
	var req pairClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	baseURL := h.cloudBaseURL()
	if baseURL == "" {
		fail(c, cloud.ErrNoBaseURL)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Edge Gateway"
	}

	res, err := h.Cloud.CompletePairing(c.Request.Context(), baseURL, strings.TrimSpace(req.Code), name)
	if err != nil {
		log.Warn().Err(err).Msg("pairing failed")
		status := http.StatusBadRequest
		if cloud.IsNetworkError(err) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.Store.Update(func(cfg *model.GatewayConfig) error {
		cfg.GatewayID = res.GatewayID
		cfg.Secret = res.Secret
		cfg.RestaurantID = res.RestaurantID
		cfg.CloudBaseURL = baseURL
		cfg.BoundAt = h.now().UTC().Format(time.RFC3339Nano)
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}

	log.Info().Str("gateway_id", cfg.GatewayID).Str("restaurant_id", cfg.RestaurantID).Msg("gateway paired")
	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"gatewayId":    cfg.GatewayID,
		"restaurantId": cfg.RestaurantID,
		"boundAt":      cfg.BoundAt,
	})
}
