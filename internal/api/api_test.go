package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-edge/config"
	"pos-edge/internal/cloud"
	"pos-edge/internal/edgesync"
	"pos-edge/internal/model"
	"pos-edge/internal/printer"
	"pos-edge/internal/printq"
	"pos-edge/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockSender struct {
	mu         sync.Mutex
	SendFunc   func(ip string, port int, data []byte) error
	last       []byte
	lastCtxErr error
}

func (m *mockSender) Send(ctx context.Context, ip string, port int, data []byte, timeout time.Duration) error {
	m.mu.Lock()
	m.last = append([]byte(nil), data...)
	m.lastCtxErr = ctx.Err()
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ip, port, data)
	}
	return nil
}

type testEnv struct {
	router *gin.Engine
	store  *store.FileStore
	sender *mockSender
	probes int
}

type envOptions struct {
	cloudURL     string
	disableQueue bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.DiscoveryCacheSeconds = 30
	cfg.Cloud.BaseURL = opts.cloudURL

	env := &testEnv{
		store:  store.NewFileStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "outbox.jsonl")),
		sender: &mockSender{},
	}
	var mu sync.Mutex
	probe := func(ctx context.Context, addr string, timeout time.Duration) bool {
		mu.Lock()
		env.probes++
		mu.Unlock()
		return addr == "192.168.1.50:9100" || addr == "192.168.1.9:9100"
	}
	scanner := printer.NewScannerWith(probe, func() (net.IP, error) { return net.ParseIP("192.168.1.10"), nil })

	client := cloud.NewClient(time.Second)
	deps := Deps{
		Config:  cfg,
		Store:   env.store,
		Cloud:   client,
		Sender:  env.sender,
		Scanner: scanner,
		Pusher:  edgesync.NewPusher(env.store, client, cfg.Cloud.BaseURL, cfg.Sync.BatchSize),
	}
	if !opts.disableQueue {
		q, err := printq.Open(filepath.Join(dir, "jobs.db"))
		require.NoError(t, err)
		t.Cleanup(func() { q.Close() })
		deps.Jobs = q
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func (e *testEnv) pair(t *testing.T) {
	_, err := e.store.Update(func(cfg *model.GatewayConfig) error {
		cfg.GatewayID, cfg.Secret, cfg.RestaurantID = "g1", "s1", "r1"
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) addPrinter(t *testing.T) string {
	w, body := e.do(t, http.MethodPost, "/printers", gin.H{"name": "Front", "ip": "192.168.1.50", "port": 9100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return body["printer"].(map[string]any)["id"].(string)
}

func pairingCloud(t *testing.T, response string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/pair/complete", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["code"] != "ABC12345" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid or expired code"}`)
			return
		}
		fmt.Fprint(w, response)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPairClaim_ThenHealthReportsBound(t *testing.T) {
	cloudSrv := pairingCloud(t, `{"gatewayId":"g1","secret":"s1","restaurantId":"r1"}`)
	env := newTestEnv(t, envOptions{cloudURL: cloudSrv.URL})

	_, health := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, false, health["bound"])

	w, body := env.do(t, http.MethodPost, "/pair/claim", gin.H{"code": "ABC12345", "name": "Front counter"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["ok"])

	w, health = env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, health["bound"])
	assert.Equal(t, "g1", health["gatewayId"])
	assert.Equal(t, "r1", health["restaurantId"])
	assert.Equal(t, cloudSrv.URL, health["cloudBaseUrl"])
	assert.Equal(t, "192.168.1.10", health["lanIp"])
	assert.NotNil(t, health["boundAt"])

	cfg := env.store.ReadConfig()
	assert.Equal(t, "s1", cfg.Secret)
	assert.Equal(t, cloudSrv.URL, cfg.CloudBaseURL)
}

func TestPairClaim_Failures(t *testing.T) {
	partial := pairingCloud(t, `{"gatewayId":"g1","secret":"s1"}`)

	testCases := []struct {
		name      string
		cloudURL  string
		body      any
		expectErr string
	}{
		{name: "No cloud URL", cloudURL: "", body: gin.H{"code": "ABC12345"}, expectErr: "not configured"},
		{name: "Missing code", cloudURL: partial.URL, body: gin.H{"name": "x"}, expectErr: "code is required"},
		{name: "Malformed body", cloudURL: partial.URL, body: "{", expectErr: "code is required"},
		{name: "Incomplete cloud answer", cloudURL: partial.URL, body: gin.H{"code": "ABC12345"}, expectErr: "missing"},
		{name: "Rejected code", cloudURL: partial.URL, body: gin.H{"code": "WRONG"}, expectErr: "invalid or expired code"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{cloudURL: tc.cloudURL})
			w, body := env.do(t, http.MethodPost, "/pair/claim", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, body["error"], tc.expectErr)
			assert.Nil(t, env.store.ReadConfig())
		})
	}
}

func TestPrinters_CRUD(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w, _ := env.do(t, http.MethodPost, "/printers", gin.H{"name": "Bad", "ip": "not-an-ip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = env.do(t, http.MethodPost, "/printers", gin.H{"name": "Bad", "ip": "192.168.1.5", "port": 70000})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := env.do(t, http.MethodPost, "/printers", gin.H{"ip": "192.168.1.60"})
	require.Equal(t, http.StatusOK, w.Code)
	p := body["printer"].(map[string]any)
	assert.Equal(t, "192.168.1.60", p["name"])
	assert.EqualValues(t, 9100, p["port"])

	_, body = env.do(t, http.MethodGet, "/printers", nil)
	assert.Len(t, body["printers"], 1)

	w, _ = env.do(t, http.MethodDelete, "/printers/"+p["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = env.do(t, http.MethodDelete, "/printers/"+p["id"].(string), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrintTest_Dialects(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.addPrinter(t)

	testCases := []struct {
		path   string
		prefix []byte
		suffix []byte
	}{
		{path: "/print/test", prefix: []byte{0x1B, 0x40}, suffix: []byte{0x1D, 0x56, 0x00}},
		{path: "/print/test-pcl", prefix: []byte("\x1b%-12345X@PJL JOB NAME="), suffix: []byte("\x1b%-12345X")},
		{path: "/print/test-text", prefix: []byte("\r\n\r\nTEST PRINT\r\nFront\r\n"), suffix: []byte("\f")},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			w, body := env.do(t, http.MethodPost, tc.path, gin.H{"printerId": id})
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, true, body["ok"])
			assert.True(t, bytes.HasPrefix(env.sender.last, tc.prefix), "%q", env.sender.last)
			assert.True(t, bytes.HasSuffix(env.sender.last, tc.suffix), "%q", env.sender.last)
			assert.Contains(t, string(env.sender.last), "192.168.1.50:9100")
		})
	}
}

func TestPrintTest_ClientDisconnectDoesNotCancelSend(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.addPrinter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/print/test", strings.NewReader(fmt.Sprintf(`{"printerId":%q}`, id))).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NoError(t, env.sender.lastCtxErr)
	assert.NotEmpty(t, env.sender.last)
}

func TestDiscover_HugeTimeoutClampsToMax(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	w, body := env.do(t, http.MethodGet, "/printers/discover?timeoutMs=10000000000000", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2000, body["timeoutMs"])

	w, body = env.do(t, http.MethodGet, "/printers/discover?timeoutMs=-5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 50, body["timeoutMs"])
}

func TestPrintTest_Failures(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.addPrinter(t)

	w, _ := env.do(t, http.MethodPost, "/print/test", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.do(t, http.MethodPost, "/print/test", gin.H{"printerId": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.sender.SendFunc = func(string, int, []byte) error {
		return fmt.Errorf("%w: connect 192.168.1.50:9100: connection refused", printer.ErrUnreachable)
	}
	w, body := env.do(t, http.MethodPost, "/print/test", gin.H{"printerId": id})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "connection refused")
}

func TestDiscover_ClampsAndCaches(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w, body := env.do(t, http.MethodGet, "/printers/discover?timeoutMs=99999&concurrency=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2000, body["timeoutMs"])
	assert.EqualValues(t, 1, body["concurrency"])
	assert.Equal(t, []any{
		map[string]any{"ip": "192.168.1.9", "port": float64(9100)},
		map[string]any{"ip": "192.168.1.50", "port": float64(9100)},
	}, body["found"])
	assert.Equal(t, 253, env.probes)

	w, _ = env.do(t, http.MethodGet, "/printers/discover?timeoutMs=99999&concurrency=0", nil)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, 253, env.probes)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	batch := gin.H{"events": []any{
		gin.H{"id": "e1", "type": "order.created", "payload": gin.H{"total": 21.3}, "createdAt": 1748800000000},
		gin.H{"id": "e2", "type": "order.paid", "createdAt": "2025-06-01T18:30:00Z"},
		gin.H{"id": "", "type": "order.paid"},
		gin.H{"id": "e4"},
		"garbage",
	}}

	w, _ := env.do(t, http.MethodPost, "/events", batch)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.pair(t)
	w, body := env.do(t, http.MethodPost, "/events", batch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 2, body["accepted"])
	assert.EqualValues(t, 3, body["skipped"])

	w, _ = env.do(t, http.MethodPost, "/events", gin.H{"events": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, body = env.do(t, http.MethodGet, "/events?limit=1", nil)
	events := body["events"].([]any)
	require.Len(t, events, 1)
	first := events[0].(map[string]any)
	assert.Equal(t, "e1", first["id"])
	assert.Equal(t, "2025-06-01T17:46:40Z", first["createdAt"])
	assert.EqualValues(t, 2, body["pending"])

	_, health := env.do(t, http.MethodGet, "/health", nil)
	assert.EqualValues(t, 2, health["outboxPending"])
}

func TestEvents_OversizedEventRejected(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.pair(t)

	big := strings.Repeat("x", store.MaxEventSize)
	w, body := env.do(t, http.MethodPost, "/events", gin.H{"events": []any{
		gin.H{"id": "ok", "type": "order.created"},
		gin.H{"id": "big", "type": "order.created", "payload": big},
	}})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, body["error"], "events[1]")

	n, err := env.store.OutboxLen()
	require.NoError(t, err)
	assert.Zero(t, n, "a rejected batch must not be partially appended")

	w, _ = env.do(t, http.MethodPost, "/events", gin.H{"events": []any{gin.H{"id": "ok", "type": "order.created"}}})
	assert.Equal(t, http.StatusOK, w.Code)
	_, health := env.do(t, http.MethodGet, "/health", nil)
	assert.EqualValues(t, 1, health["outboxPending"])
}

func TestSyncPush(t *testing.T) {
	var gotIDs []string
	cloudSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edge/push-events", r.URL.Path)
		assert.Equal(t, "g1", r.Header.Get("x-gateway-id"))
		var body struct {
			Events []model.OutboxEvent `json:"events"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		for _, ev := range body.Events {
			gotIDs = append(gotIDs, ev.ID)
		}
		fmt.Fprint(w, `{"accepted":1,"duplicate":1}`)
	}))
	defer cloudSrv.Close()

	env := newTestEnv(t, envOptions{cloudURL: cloudSrv.URL})
	w, _ := env.do(t, http.MethodPost, "/sync/push", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.pair(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, env.store.AppendOutboxEvent(model.OutboxEvent{ID: id, Type: "t", Payload: json.RawMessage(`{}`)}))
	}

	w, body := env.do(t, http.MethodPost, "/sync/push", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"a", "b", "c"}, gotIDs)
	assert.EqualValues(t, 2, body["dropped"])
	assert.EqualValues(t, 1, body["remaining"])

	left, err := env.store.ReadOutboxEvents(10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c", left[0].ID)
}

func TestSyncPush_CloudDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	env := newTestEnv(t, envOptions{cloudURL: "http://" + addr})
	env.pair(t)
	require.NoError(t, env.store.AppendOutboxEvent(model.OutboxEvent{ID: "a", Type: "t"}))

	w, _ := env.do(t, http.MethodPost, "/sync/push", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	n, err := env.store.OutboxLen()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConfigCloudAndReset(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w, _ := env.do(t, http.MethodPost, "/config/cloud", gin.H{"cloudBaseUrl": "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := env.do(t, http.MethodPost, "/config/cloud", gin.H{"cloudBaseUrl": "https://cloud.example.com/"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cloud.example.com", body["cloudBaseUrl"])
	assert.Equal(t, "https://cloud.example.com", body["effectiveCloudBaseUrl"])

	env.pair(t)
	env.addPrinter(t)
	_, health := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, true, health["bound"])

	w, _ = env.do(t, http.MethodPost, "/config/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, health = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, false, health["bound"])
	assert.EqualValues(t, 0, health["printers"])
}

func TestPrintJobs(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.addPrinter(t)

	w, _ := env.do(t, http.MethodPost, "/print/jobs", gin.H{"printerId": id, "kind": "zpl", "title": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = env.do(t, http.MethodPost, "/print/jobs", gin.H{"printerId": "nope", "title": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := env.do(t, http.MethodPost, "/print/jobs", gin.H{
		"printerId": id, "kind": "text", "title": "TABLE 4", "lines": []string{"1x Soup"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	job := body["job"].(map[string]any)
	jobID := job["id"].(string)
	assert.Equal(t, "queued", job["status"])
	assert.Equal(t, "text", job["dialect"])

	_, body = env.do(t, http.MethodGet, "/print/jobs?status=queued", nil)
	assert.Len(t, body["jobs"], 1)

	w, body = env.do(t, http.MethodPost, "/print/jobs/"+jobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "canceled", body["job"].(map[string]any)["status"])

	w, _ = env.do(t, http.MethodPost, "/print/jobs/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.do(t, http.MethodGet, "/print/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPrintJobs_Disabled(t *testing.T) {
	env := newTestEnv(t, envOptions{disableQueue: true})
	w, body := env.do(t, http.MethodGet, "/print/jobs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "print queue is disabled", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.do(t, http.MethodGet, "/health", nil)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "edge_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{store.ErrNotPaired, http.StatusConflict},
		{store.ErrPrinterNotFound, http.StatusNotFound},
		{cloud.ErrNoBaseURL, http.StatusBadRequest},
		{fmt.Errorf("x: %w", printer.ErrUnreachable), http.StatusBadRequest},
		{&cloud.APIError{Status: 401}, http.StatusBadGateway},
		{fmt.Errorf("append: %w", store.ErrEventTooLarge), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, statusFor(tc.err), tc.err.Error())
	}
}
