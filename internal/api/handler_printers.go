package api

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pos-edge/internal/parse"
	"pos-edge/internal/printer"
	"pos-edge/internal/store"
)

type addPrinterRequest struct {
	Name string `json:"name"`
	IP   string `json:"ip" binding:"required"`
	Port int    `json:"port"`
}

func (r *addPrinterRequest) validate() error {
	r.IP = strings.TrimSpace(r.IP)
	addr, err := netip.ParseAddr(r.IP)
	if err != nil || !addr.Is4() {
		return fmt.Errorf("ip must be an IPv4 address, got %q", r.IP)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("port %d is out of range", r.Port)
	}
	return nil
}

// GetPrinters lists the registered printers.
func (h *Handler) GetPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "printers": h.Store.Printers()})
}

// PostPrinter registers a printer.
func (h *Handler) PostPrinter(c *gin.Context) {
	var req addPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Port == 0 {
		req.Port = h.Config.Printer.DefaultPort
	}

	p, err := h.Store.AddPrinter(strings.TrimSpace(req.Name), req.IP, req.Port)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "printer": p})
}

// DeletePrinter removes a printer by id.
func (h *Handler) DeletePrinter(c *gin.Context) {
	removed, err := h.Store.RemovePrinter(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !removed {
		fail(c, store.ErrPrinterNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetDiscover sweeps the local /24 for open printer ports.
func (h *Handler) GetDiscover(c *gin.Context) {
	d := h.Config.Discovery
	timeoutMs := parse.ClampInt(parse.IntOr(c.Query("timeoutMs"), d.TimeoutMs),
		int(printer.MinProbeTimeout/time.Millisecond), int(printer.MaxProbeTimeout/time.Millisecond))
	opts := printer.DiscoverOptions{
		Port:        parse.IntOr(c.Query("port"), d.Port),
		Timeout:     time.Duration(timeoutMs) * time.Millisecond,
		Concurrency: parse.IntOr(c.Query("concurrency"), d.Concurrency),
	}.Normalize()

	// A sweep runs to completion once started; probes are bounded by their
	// own timeout.
	found, err := h.Scanner.Discover(context.WithoutCancel(c.Request.Context()), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":          true,
		"localIp":     h.lanIP(),
		"port":        opts.Port,
		"timeoutMs":   opts.Timeout.Milliseconds(),
		"concurrency": opts.Concurrency,
		"found":       found,
	})
}
