package cloud

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pos-edge/internal/model"
)

// PairResult is the credential set returned by a successful pairing.
type PairResult struct {
	GatewayID    string `json:"gatewayId"`
	Secret       string `json:"secret"`
	RestaurantID string `json:"restaurantId"`
}

// PushResult is the cloud acknowledgement of an event batch.
type PushResult struct {
	Accepted  int `json:"accepted"`
	Duplicate int `json:"duplicate"`
}

// CompletePairing exchanges a one-time pairing code for gateway credentials.
func (c *Client) CompletePairing(ctx context.Context, baseURL, code, name string) (*PairResult, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	body := map[string]string{"code": code, "name": name}

	var res PairResult
	if err := c.doJSON(ctx, "pair_complete", http.MethodPost, baseURL+"/api/edge/pair/complete", nil, body, &res); err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.GatewayID) == "" || strings.TrimSpace(res.Secret) == "" || strings.TrimSpace(res.RestaurantID) == "" {
		return nil, errors.New("pairing response is missing gatewayId, secret or restaurantId")
	}
	return &res, nil
}

// PushEvents delivers a batch of outbox events authenticated as the gateway.
func (c *Client) PushEvents(ctx context.Context, baseURL, gatewayID, secret string, events []model.OutboxEvent) (*PushResult, error) {
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	headers := map[string]string{
		"x-gateway-id":     gatewayID,
		"x-gateway-secret": secret,
	}
	body := map[string]any{"events": events}

	var res PushResult
	if err := c.doJSON(ctx, "push_events", http.MethodPost, baseURL+"/api/edge/push-events", headers, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
