package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"pos-edge/internal/model"
	"pos-edge/internal/reconcile"
)

// Format selects how command results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

type printer struct {
	format Format
	w      io.Writer
}

func (p printer) json(data any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (p printer) order(o *model.OrderSummary) error {
	if p.format == FormatJSON {
		return p.json(o)
	}
	where := "cloud"
	if o.Offline {
		where = "offline"
	}
	fmt.Fprintf(p.w, "Order %s (%s)\n", o.ID, where)
	fmt.Fprintf(p.w, "  Status: %s\n", o.Status)
	fmt.Fprintf(p.w, "  Type:   %s\n", o.OrderType)
	fmt.Fprintf(p.w, "  Items:  %d\n", o.ItemCount)
	fmt.Fprintf(p.w, "  Total:  %.2f\n", o.Total)
	return nil
}

func (p printer) orders(list []model.OrderSummary) error {
	if p.format == FormatJSON {
		return p.json(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(p.w, "No offline orders")
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL ID\tSTATUS\tTYPE\tITEMS\tTOTAL\tCREATED")
	for _, o := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%s\n", o.LocalID, o.Status, o.OrderType, o.ItemCount, o.Total, o.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func (p printer) report(r reconcile.Report) error {
	if p.format == FormatJSON {
		if r.Synced == nil {
			r.Synced = []reconcile.SyncedOrder{}
		}
		return p.json(r)
	}
	for _, s := range r.Synced {
		note := ""
		if s.Adopted {
			note = " (already in cloud)"
		}
		fmt.Fprintf(p.w, "%s -> %s%s\n", s.LocalID, s.CloudOrderID, note)
	}
	fmt.Fprintf(p.w, "Synced %d order(s), skipped %d\n", len(r.Synced), r.Skipped)
	return nil
}

func (p printer) message(format string, args ...any) error {
	if p.format == FormatJSON {
		return p.json(map[string]any{"ok": true, "message": fmt.Sprintf(format, args...)})
	}
	fmt.Fprintf(p.w, format+"\n", args...)
	return nil
}
