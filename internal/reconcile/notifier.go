package reconcile

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"pos-edge/internal/cloud"
	"pos-edge/internal/model"
)

// HTTPNotifier posts order.synced events to the edge gateway outbox.
type HTTPNotifier struct {
	baseURL string
	client  *cloud.Client
	now     func() time.Time
}

// NewHTTPNotifier targets the gateway at baseURL.
func NewHTTPNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  cloud.NewClient(5 * time.Second),
		now:     time.Now,
	}
}

// NotifySynced records that localID became cloudOrderID. The event id is
// stable so the cloud can drop duplicates of a re-run.
func (n *HTTPNotifier) NotifySynced(ctx context.Context, localID, cloudOrderID string) error {
	payload, err := json.Marshal(map[string]string{"local_id": localID, "cloud_order_id": cloudOrderID})
	if err != nil {
		return err
	}
	body := map[string]any{
		"events": []model.OutboxEvent{{
			ID:        "order-synced:" + localID,
			Type:      "order.synced",
			Payload:   payload,
			CreatedAt: n.now().UTC().Format(time.RFC3339Nano),
		}},
	}
	return n.client.PostJSON(ctx, "gateway_events", n.baseURL+"/events", nil, body, nil)
}
