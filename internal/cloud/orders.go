package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"pos-edge/internal/model"
)

// OrderClient talks to the cloud order and inventory APIs on behalf of a POS
// terminal.
type OrderClient struct {
	*Client
	baseURL string
	token   string
}

// NewOrderClient binds a client to a base URL and bearer token.
func NewOrderClient(c *Client, baseURL, token string) *OrderClient {
	return &OrderClient{Client: c, baseURL: ResolveBaseURL("", baseURL), token: token}
}

func (o *OrderClient) headers() map[string]string {
	if o.token == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.token}
}

type createOrderBody struct {
	model.OrderRequest
	LocalID string `json:"local_id,omitempty"`
}

// CreateOrder creates a cloud order tagged with localID (which may be empty
// for orders created online).
func (o *OrderClient) CreateOrder(ctx context.Context, req model.OrderRequest, localID string) (*model.OrderSummary, error) {
	if o.baseURL == "" {
		return nil, ErrNoBaseURL
	}
	var out struct {
		Order model.OrderSummary `json:"order"`
	}
	body := createOrderBody{OrderRequest: req, LocalID: localID}
	if err := o.doJSON(ctx, "create_order", http.MethodPost, o.baseURL+"/api/orders", o.headers(), body, &out); err != nil {
		return nil, err
	}
	if out.Order.ID == "" {
		return nil, fmt.Errorf("create order response carries no order id")
	}
	return &out.Order, nil
}

// FindOrderByLocalID returns the cloud order tagged with localID, or nil when
// none exists.
func (o *OrderClient) FindOrderByLocalID(ctx context.Context, localID string) (*model.OrderSummary, error) {
	if o.baseURL == "" {
		return nil, ErrNoBaseURL
	}
	var out struct {
		Orders []model.OrderSummary `json:"orders"`
	}
	u := o.baseURL + "/api/orders?local_id=" + url.QueryEscape(localID)
	if err := o.doJSON(ctx, "find_order", http.MethodGet, u, o.headers(), nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Orders {
		if out.Orders[i].LocalID == localID {
			return &out.Orders[i], nil
		}
	}
	return nil, nil
}

// MarkOrderPaid records a payment against a cloud order. Paying an already
// paid order is a no-op at the cloud.
func (o *OrderClient) MarkOrderPaid(ctx context.Context, orderID string, p model.Payment) error {
	if o.baseURL == "" {
		return ErrNoBaseURL
	}
	u := o.baseURL + "/api/orders/" + url.PathEscape(orderID) + "/pay"
	return o.doJSON(ctx, "mark_paid", http.MethodPost, u, o.headers(), map[string]any{"payment": p}, nil)
}

// ApplySale decrements stock for the items of a paid order.
func (o *OrderClient) ApplySale(ctx context.Context, orderID string, items []model.OrderItem) error {
	if o.baseURL == "" {
		return ErrNoBaseURL
	}
	body := map[string]any{"order_id": orderID, "items": items}
	return o.doJSON(ctx, "inventory_decrement", http.MethodPost, o.baseURL+"/api/inventory/decrement", o.headers(), body, nil)
}

// Health checks that the cloud answers at all.
func (o *OrderClient) Health(ctx context.Context) error {
	if o.baseURL == "" {
		return ErrNoBaseURL
	}
	return o.doJSON(ctx, "health", http.MethodGet, o.baseURL+"/api/health", nil, nil, nil)
}
