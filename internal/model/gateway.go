package model

import "encoding/json"

// Printer is a LAN printer registered with the gateway.
type Printer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
	CreatedAt string `json:"createdAt"`
}

// GatewayConfig is the persisted pairing state and printer list of the gateway.
type GatewayConfig struct {
	GatewayID    string    `json:"gatewayId,omitempty"`
	Secret       string    `json:"secret,omitempty"`
	RestaurantID string    `json:"restaurantId,omitempty"`
	CloudBaseURL string    `json:"cloudBaseUrl,omitempty"`
	BoundAt      string    `json:"boundAt,omitempty"`
	Printers     []Printer `json:"printers"`
}

// Bound reports whether the gateway holds a complete pairing.
func (c *GatewayConfig) Bound() bool {
	return c != nil && c.GatewayID != "" && c.Secret != "" && c.RestaurantID != ""
}

// OutboxEvent is a single record of the durable event outbox.
type OutboxEvent struct {
	ID        string          `json:"id"`
	DeviceID  *string         `json:"deviceId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
}
