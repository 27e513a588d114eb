package edgesync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-edge/internal/cloud"
	"pos-edge/internal/model"
	"pos-edge/internal/store"
)

func newPairedStore(t *testing.T, baseURL string) *store.FileStore {
	dir := t.TempDir()
	st := store.NewFileStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "outbox.jsonl"))
	require.NoError(t, st.WriteConfig(&model.GatewayConfig{
		GatewayID:    "g1",
		Secret:       "s1",
		RestaurantID: "r1",
		CloudBaseURL: baseURL,
	}))
	return st
}

func appendEvents(t *testing.T, st store.Store, n int) {
	for i := 0; i < n; i++ {
		require.NoError(t, st.AppendOutboxEvent(model.OutboxEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			Type:      "order.created",
			Payload:   json.RawMessage(`{}`),
			CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		}))
	}
}

func TestPusher_PushOnce(t *testing.T) {
	testCases := []struct {
		name              string
		queued            int
		response          string
		status            int
		expectErr         bool
		expectedDropped   int
		expectedRemaining []string
	}{
		{
			name:              "Accepted and duplicate are both dropped",
			queued:            3,
			response:          `{"accepted":1,"duplicate":1}`,
			status:            http.StatusOK,
			expectedDropped:   2,
			expectedRemaining: []string{"ev-2"},
		},
		{
			name:              "Over-acknowledgement is clamped",
			queued:            2,
			response:          `{"accepted":5,"duplicate":0}`,
			status:            http.StatusOK,
			expectedDropped:   2,
			expectedRemaining: []string{},
		},
		{
			name:              "Cloud failure keeps everything",
			queued:            2,
			response:          `{"error":"bad secret"}`,
			status:            http.StatusUnauthorized,
			expectErr:         true,
			expectedRemaining: []string{"ev-0", "ev-1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "g1", r.Header.Get("x-gateway-id"))
				assert.Equal(t, "s1", r.Header.Get("x-gateway-secret"))
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.response))
			}))
			defer server.Close()

			st := newPairedStore(t, server.URL)
			appendEvents(t, st, tc.queued)

			res, err := NewPusher(st, cloud.NewClient(time.Second), "", 0).PushOnce(context.Background())
			if tc.expectErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.queued, res.Sent)
				assert.Equal(t, tc.expectedDropped, res.Dropped)
				assert.Equal(t, len(tc.expectedRemaining), res.Remaining)
			}

			left, err := st.ReadOutboxEvents(100)
			require.NoError(t, err)
			ids := []string{}
			for _, ev := range left {
				ids = append(ids, ev.ID)
			}
			assert.Equal(t, tc.expectedRemaining, ids)
		})
	}
}

func TestPusher_BatchLimit(t *testing.T) {
	var got int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Events []model.OutboxEvent `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = len(body.Events)
		fmt.Fprintf(w, `{"accepted":%d,"duplicate":0}`, got)
	}))
	defer server.Close()

	st := newPairedStore(t, server.URL)
	appendEvents(t, st, 7)

	res, err := NewPusher(st, cloud.NewClient(time.Second), "", 5).PushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, got)
	assert.Equal(t, 2, res.Remaining)
}

func TestPusher_OverrideWinsOverStoredURL(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.Write([]byte(`{"accepted":1,"duplicate":0}`))
	}))
	defer server.Close()

	st := newPairedStore(t, "http://127.0.0.1:1")
	appendEvents(t, st, 1)

	_, err := NewPusher(st, cloud.NewClient(time.Second), server.URL, 0).PushOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestPusher_Preconditions(t *testing.T) {
	dir := t.TempDir()
	st := store.NewFileStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "outbox.jsonl"))
	p := NewPusher(st, cloud.NewClient(time.Second), "", 0)

	_, err := p.PushOnce(context.Background())
	assert.ErrorIs(t, err, store.ErrNotPaired)

	require.NoError(t, st.WriteConfig(&model.GatewayConfig{GatewayID: "g1", Secret: "s1", RestaurantID: "r1"}))
	_, err = p.PushOnce(context.Background())
	assert.ErrorIs(t, err, cloud.ErrNoBaseURL)
}

func TestPusher_EmptyOutboxSkipsCloud(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("cloud must not be called for an empty outbox")
	}))
	defer server.Close()

	res, err := NewPusher(newPairedStore(t, server.URL), cloud.NewClient(time.Second), "", 0).PushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}
