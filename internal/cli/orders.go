package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pos-edge/internal/model"
	"pos-edge/internal/offline"
	"pos-edge/internal/reconcile"
)

func newOrdersCmd(a *app) *cobra.Command {
	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Create, settle and inspect orders",
	}
	ordersCmd.AddCommand(
		newOrdersCreateCmd(a),
		newOrdersListCmd(a),
		newOrdersPayCmd(a),
		newOrdersCancelCmd(a),
		newOrdersRemoveCmd(a),
	)
	return ordersCmd
}

type createFlags struct {
	file     string
	kind     string
	table    string
	items    []string
	tax      float64
	tip      float64
	customer string
	phone    string
	address  string
	notes    string
}

func newOrdersCreateCmd(a *app) *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order, falling back to offline storage",
		Example: `  posctl orders create --type dine_in --table T4 --item m1:Burger:2:9.50 --item m2:Soda:1:2.30
  posctl orders create --file order.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(a.cfg.Restaurant.ID)
			if err != nil {
				return err
			}

			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			sub := reconcile.NewSubmitter(a.orderClient(), cache, a.cfg.User.ID)
			created, err := sub.CreateOrder(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.out.order(created)
		},
	}
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "read the order request from a JSON file")
	cmd.Flags().StringVar(&f.kind, "type", string(model.OrderTypeDineIn), "order type (dine_in|takeaway|delivery)")
	cmd.Flags().StringVar(&f.table, "table", "", "table id for dine-in orders")
	cmd.Flags().StringArrayVar(&f.items, "item", nil, "order line as menu_item_id:name:quantity:unit_price (repeatable)")
	cmd.Flags().Float64Var(&f.tax, "tax", 0, "tax amount")
	cmd.Flags().Float64Var(&f.tip, "tip", 0, "tip amount")
	cmd.Flags().StringVar(&f.customer, "customer", "", "customer name")
	cmd.Flags().StringVar(&f.phone, "phone", "", "customer phone")
	cmd.Flags().StringVar(&f.address, "address", "", "delivery address")
	cmd.Flags().StringVar(&f.notes, "notes", "", "order notes")
	return cmd
}

func (f createFlags) request(restaurantID string) (model.OrderRequest, error) {
	var req model.OrderRequest
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return req, err
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("invalid order file %s: %w", f.file, err)
		}
		if req.RestaurantID == "" {
			req.RestaurantID = restaurantID
		}
		return req, nil
	}

	req = model.OrderRequest{
		RestaurantID:    restaurantID,
		OrderType:       model.OrderType(f.kind),
		TableID:         f.table,
		Tax:             f.tax,
		Tip:             f.tip,
		CustomerName:    f.customer,
		CustomerPhone:   f.phone,
		DeliveryAddress: f.address,
		Notes:           f.notes,
	}
	for _, raw := range f.items {
		it, err := ParseItem(raw)
		if err != nil {
			return req, err
		}
		req.Items = append(req.Items, it)
	}
	ApplyTotals(&req)
	return req, nil
}

// ParseItem parses menu_item_id:name:quantity:unit_price.
func ParseItem(raw string) (model.OrderItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return model.OrderItem{}, fmt.Errorf("invalid item %q: want menu_item_id:name:quantity:unit_price", raw)
	}
	qty, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.OrderItem{}, fmt.Errorf("invalid item %q: bad quantity", raw)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return model.OrderItem{}, fmt.Errorf("invalid item %q: bad unit price", raw)
	}
	return model.OrderItem{
		MenuItemID: strings.TrimSpace(parts[0]),
		Name:       strings.TrimSpace(parts[1]),
		Quantity:   qty,
		UnitPrice:  price,
	}, nil
}

// ApplyTotals fills subtotal and total from the items, tax and tip, rounded
// to cents.
func ApplyTotals(req *model.OrderRequest) {
	sub := 0.0
	for _, it := range req.Items {
		sub += float64(it.Quantity) * it.UnitPrice
	}
	req.Subtotal = roundCents(sub)
	req.Total = roundCents(req.Subtotal + req.Tax + req.Tip)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func newOrdersListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List orders waiting in the offline cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			list, err := cache.ListSummaries(cmd.Context())
			if err != nil {
				return err
			}
			return a.out.orders(list)
		},
	}
}

func newOrdersPayCmd(a *app) *cobra.Command {
	var (
		method   string
		tendered float64
	)
	cmd := &cobra.Command{
		Use:   "pay <order-id>",
		Short: "Settle a cloud or offline order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID := args[0]
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			p := model.Payment{Method: method, Tendered: tendered}
			if strings.HasPrefix(orderID, offline.LocalIDPrefix) && tendered > 0 {
				o, err := cache.Get(cmd.Context(), orderID)
				if err != nil {
					return err
				}
				if tendered < o.Payload.Total {
					return fmt.Errorf("tendered %.2f is less than the total %.2f", tendered, o.Payload.Total)
				}
				p.ChangeDue = roundCents(tendered - o.Payload.Total)
			}

			sub := reconcile.NewSubmitter(a.orderClient(), cache, a.cfg.User.ID)
			if err := sub.PayOrder(cmd.Context(), orderID, p); err != nil {
				return err
			}
			if p.ChangeDue > 0 {
				return a.out.message("Order %s paid, change due %.2f", orderID, p.ChangeDue)
			}
			return a.out.message("Order %s paid", orderID)
		},
	}
	cmd.Flags().StringVar(&method, "method", "cash", "payment method")
	cmd.Flags().Float64Var(&tendered, "tendered", 0, "amount tendered")
	return cmd
}

func newOrdersCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <local-id>",
		Short: "Cancel an offline order so it is never synced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			sub := reconcile.NewSubmitter(a.orderClient(), cache, a.cfg.User.ID)
			if err := sub.CancelOrder(cmd.Context(), args[0]); err != nil {
				return notFoundHint(err, args[0])
			}
			return a.out.message("Order %s canceled", args[0])
		},
	}
}

func newOrdersRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <local-id>",
		Short: "Delete an offline order from the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := a.openCache()
			if err != nil {
				return err
			}
			defer cache.Close()

			if _, err := cache.Get(cmd.Context(), args[0]); err != nil {
				return notFoundHint(err, args[0])
			}
			if err := cache.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.out.message("Order %s removed", args[0])
		},
	}
}

func notFoundHint(err error, id string) error {
	if errors.Is(err, offline.ErrNotFound) {
		return fmt.Errorf("no offline order %s (see \"posctl orders list\")", id)
	}
	return err
}
