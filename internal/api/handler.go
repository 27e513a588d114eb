// Package api is the local HTTP surface of the edge gateway.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pos-edge/config"
	"pos-edge/internal/cloud"
	"pos-edge/internal/edgesync"
	"pos-edge/internal/printer"
	"pos-edge/internal/printq"
	"pos-edge/internal/store"
)

// Discoverer sweeps the LAN for printers.
type Discoverer interface {
	Discover(ctx context.Context, opts printer.DiscoverOptions) ([]printer.Found, error)
	LocalIP() (net.IP, error)
}

// Deps are the collaborators of the HTTP handlers. Jobs and Pool are nil
// when the print queue is disabled.
type Deps struct {
	Config  *config.Config
	Store   store.Store
	Cloud   *cloud.Client
	Sender  printer.Sender
	Scanner Discoverer
	Pusher  *edgesync.Pusher
	Jobs    *printq.Queue
	Pool    *printq.WorkerPool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
	now func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Config == nil {
		d.Config = config.Default()
	}
	return &Handler{Deps: d, now: time.Now}
}

// cloudBaseURL resolves the env override against the stored URL.
func (h *Handler) cloudBaseURL() string {
	stored := ""
	if cfg := h.Store.ReadConfig(); cfg != nil {
		stored = cfg.CloudBaseURL
	}
	return cloud.ResolveBaseURL(h.Config.Cloud.BaseURL, stored)
}

func (h *Handler) lanIP() string {
	if h.Scanner == nil {
		return ""
	}
	ip, err := h.Scanner.LocalIP()
	if err != nil {
		return ""
	}
	return ip.String()
}

// fail writes {error} with the status matching err.
func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, store.ErrNotPaired):
		return http.StatusConflict
	case errors.Is(err, store.ErrPrinterNotFound), errors.Is(err, printq.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, printq.ErrNotCancelable):
		return http.StatusConflict
	case errors.Is(err, cloud.ErrNoBaseURL), errors.Is(err, printer.ErrUnreachable), errors.Is(err, store.ErrEventTooLarge):
		return http.StatusBadRequest
	case errors.As(err, &apiErr), cloud.IsNetworkError(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
