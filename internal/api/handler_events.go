package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"pos-edge/internal/metrics"
	"pos-edge/internal/model"
	"pos-edge/internal/parse"
	"pos-edge/internal/store"
)

// maxEventsBody bounds a whole POST /events request.
const maxEventsBody = 16 << 20

type postEventsRequest struct {
	Events []json.RawMessage `json:"events" binding:"required"`
}

type incomingEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	DeviceID  *string         `json:"deviceId"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt json.RawMessage `json:"createdAt"`
}

// PostEvents appends caller events to the outbox. Entries without an id or
// type are skipped, not rejected.
func (h *Handler) PostEvents(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventsBody)

	var req postEventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", maxEventsBody)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "events must be an array"})
		return
	}
	for i, raw := range req.Events {
		if len(raw) > store.MaxEventSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("events[%d] exceeds %d bytes", i, store.MaxEventSize)})
			return
		}
	}
	if !h.Store.ReadConfig().Bound() {
		fail(c, store.ErrNotPaired)
		return
	}

	now := h.now()
	accepted, skipped := 0, 0
	for _, raw := range req.Events {
		var in incomingEvent
		if err := json.Unmarshal(raw, &in); err != nil {
			skipped++
			continue
		}
		in.ID = strings.TrimSpace(in.ID)
		in.Type = strings.TrimSpace(in.Type)
		if in.ID == "" || in.Type == "" {
			skipped++
			continue
		}

		ev := model.OutboxEvent{
			ID:        in.ID,
			DeviceID:  in.DeviceID,
			Type:      in.Type,
			Payload:   in.Payload,
			CreatedAt: parse.Timestamp(rawTimestamp(in.CreatedAt), now),
		}
		if len(ev.Payload) == 0 {
			ev.Payload = json.RawMessage("null")
		}
		if err := h.Store.AppendOutboxEvent(ev); err != nil {
			fail(c, err)
			return
		}
		accepted++
	}

	metrics.OutboxEventsAccepted.Add(float64(accepted))
	if skipped > 0 {
		log.Debug().Int("skipped", skipped).Msg("ignored events without id or type")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "accepted": accepted, "skipped": skipped})
}

// rawTimestamp turns a JSON string or number into its text form.
func rawTimestamp(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

// GetEvents lists queued events without removing them.
func (h *Handler) GetEvents(c *gin.Context) {
	limit := parse.ClampInt(parse.IntOr(c.Query("limit"), 100), 1, 500)
	events, err := h.Store.ReadOutboxEvents(limit)
	if err != nil {
		fail(c, err)
		return
	}
	pending, err := h.Store.OutboxLen()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "events": events, "pending": pending})
}
