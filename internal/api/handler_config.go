package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pos-edge/internal/cloud"
	"pos-edge/internal/model"
)

type cloudConfigRequest struct {
	CloudBaseURL string `json:"cloudBaseUrl" binding:"required"`
}

// PostConfigCloud stores the cloud base URL. An env override still wins.
func (h *Handler) PostConfigCloud(c *gin.Context) {
	var req cloudConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cloudBaseUrl is required"})
		return
	}
	u, err := cloud.ValidateBaseURL(req.CloudBaseURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.Store.Update(func(cfg *model.GatewayConfig) error {
		cfg.CloudBaseURL = u
		return nil
	}); err != nil {
		fail(c, err)
		return
	}
	log.Info().Str("cloud_base_url", u).Msg("cloud base URL updated")
	c.JSON(http.StatusOK, gin.H{"ok": true, "cloudBaseUrl": u, "effectiveCloudBaseUrl": h.cloudBaseURL()})
}

// PostConfigReset forgets pairing and printers. The outbox is kept.
func (h *Handler) PostConfigReset(c *gin.Context) {
	if err := h.Store.Reset(); err != nil {
		fail(c, err)
		return
	}
	log.Info().Msg("gateway config reset")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
