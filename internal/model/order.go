package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrderType identifies how an order is fulfilled.
type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDelivery OrderType = "delivery"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPaid, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderItem is one line of an order.
type OrderItem struct {
	MenuItemID string  `json:"menu_item_id"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	Notes      string  `json:"notes,omitempty"`
}

// OrderRequest is the full order-creation request sent to the cloud.
type OrderRequest struct {
	RestaurantID    string      `json:"restaurant_id"`
	OrderType       OrderType   `json:"order_type"`
	TableID         string      `json:"table_id,omitempty"`
	Items           []OrderItem `json:"items"`
	Subtotal        float64     `json:"subtotal"`
	Tax             float64     `json:"tax"`
	Tip             float64     `json:"tip"`
	Total           float64     `json:"total"`
	CustomerName    string      `json:"customer_name,omitempty"`
	CustomerPhone   string      `json:"customer_phone,omitempty"`
	DeliveryAddress string      `json:"delivery_address,omitempty"`
	Notes           string      `json:"notes,omitempty"`
}

// Validate checks the request once at the boundary.
func (r OrderRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RestaurantID) == "" {
		errs = append(errs, errors.New("restaurant_id is required"))
	}
	switch r.OrderType {
	case OrderTypeDineIn, OrderTypeTakeaway:
	case OrderTypeDelivery:
		if strings.TrimSpace(r.DeliveryAddress) == "" {
			errs = append(errs, errors.New("delivery_address is required for delivery orders"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown order_type %q", r.OrderType))
	}
	if len(r.Items) == 0 {
		errs = append(errs, errors.New("at least one item is required"))
	}
	for i, it := range r.Items {
		if it.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("items[%d]: quantity must be positive", i))
		}
		if it.UnitPrice < 0 {
			errs = append(errs, fmt.Errorf("items[%d]: unit_price must not be negative", i))
		}
	}
	if r.Total < 0 {
		errs = append(errs, errors.New("total must not be negative"))
	}
	return errors.Join(errs...)
}

// ItemCount sums the item quantities.
func (r OrderRequest) ItemCount() int {
	n := 0
	for _, it := range r.Items {
		n += it.Quantity
	}
	return n
}

// Payment describes how an order was settled.
type Payment struct {
	Method    string    `json:"method"`
	PaidAt    time.Time `json:"paid_at"`
	Tendered  float64   `json:"tendered"`
	ChangeDue float64   `json:"change_due"`
}

// OrderSummary is the list shape shared by cloud and offline orders.
type OrderSummary struct {
	ID           string      `json:"id"`
	LocalID      string      `json:"local_id,omitempty"`
	RestaurantID string      `json:"restaurant_id"`
	Status       OrderStatus `json:"status"`
	OrderType    OrderType   `json:"order_type"`
	Total        float64     `json:"total"`
	ItemCount    int         `json:"item_count"`
	CreatedAt    time.Time   `json:"created_at"`
	Offline      bool        `json:"offline"`
}
