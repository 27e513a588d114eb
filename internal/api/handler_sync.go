package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PostSyncPush forwards one batch of the outbox to the cloud.
func (h *Handler) PostSyncPush(c *gin.Context) {
	res, err := h.Pusher.PushOnce(c.Request.Context())
	if err != nil {
		log.Warn().Err(err).Msg("outbox push failed")
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"sent":      res.Sent,
		"accepted":  res.Accepted,
		"duplicate": res.Duplicate,
		"dropped":   res.Dropped,
		"remaining": res.Remaining,
	})
}
