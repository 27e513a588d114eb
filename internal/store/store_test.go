package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-edge/internal/model"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	dir := filepath.Join(t.TempDir(), "data")
	return NewFileStore(filepath.Join(dir, "config.json"), filepath.Join(dir, "outbox.jsonl")), dir
}

func event(i int) model.OutboxEvent {
	return model.OutboxEvent{
		ID:        fmt.Sprintf("ev-%d", i),
		Type:      "order.created",
		Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		CreatedAt: "2025-01-01T00:00:00Z",
	}
}

func TestReadConfig_MissingOrMalformed(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Nil(t, s.ReadConfig())

	require.NoError(t, os.MkdirAll(filepath.Dir(s.configPath), 0o700))
	require.NoError(t, os.WriteFile(s.configPath, []byte("{not json"), 0o600))
	assert.Nil(t, s.ReadConfig())
}

func TestWriteConfig_RoundTripAndNoTempLeftovers(t *testing.T) {
	s, dir := newTestStore(t)

	cfg := &model.GatewayConfig{GatewayID: "g1", Secret: "s1", RestaurantID: "r1", CloudBaseURL: "https://cloud"}
	require.NoError(t, s.WriteConfig(cfg))

	got := s.ReadConfig()
	require.NotNil(t, got)
	assert.True(t, got.Bound())
	assert.Equal(t, "https://cloud", got.CloudBaseURL)
	assert.NotNil(t, got.Printers)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "temp file %s left behind", e.Name())
	}
}

func TestPrinters_AddRemoveAndReset(t *testing.T) {
	s, _ := newTestStore(t)

	front, err := s.AddPrinter("Front", "192.168.1.50", 0)
	require.NoError(t, err)
	assert.Equal(t, 9100, front.Port)
	assert.NotEmpty(t, front.ID)

	bar, err := s.AddPrinter("", "192.168.1.51", 9101)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.51", bar.Name)

	_, err = s.AddPrinter("Empty", "  ", 9100)
	assert.Error(t, err)

	got, err := s.Printer(front.ID)
	require.NoError(t, err)
	assert.Equal(t, "Front", got.Name)

	removed, err := s.RemovePrinter(front.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.RemovePrinter(front.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.Printer(front.ID)
	assert.ErrorIs(t, err, ErrPrinterNotFound)

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Printers())
	assert.False(t, s.ReadConfig().Bound())
}

func TestUpdate_ConcurrentMutationsAreNotLost(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddPrinter(fmt.Sprintf("p%d", i), fmt.Sprintf("10.0.0.%d", i+1), 9100)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Printers(), 20)
}

func TestUpdate_ErrorLeavesConfigUntouched(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.WriteConfig(&model.GatewayConfig{GatewayID: "g1"}))

	_, err := s.Update(func(cfg *model.GatewayConfig) error {
		cfg.GatewayID = "changed"
		return fmt.Errorf("boom")
	})
	require.Error(t, err)
	assert.Equal(t, "g1", s.ReadConfig().GatewayID)
}

func TestOutbox_AppendGrowsByOneLine(t *testing.T) {
	s, _ := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendOutboxEvent(event(i)))
		data, err := os.ReadFile(s.outboxPath)
		require.NoError(t, err)
		assert.Equal(t, i+1, strings.Count(string(data), "\n"))
	}
}

func TestOutbox_DropThenReadReturnsSuffix(t *testing.T) {
	const n = 8
	for count := 0; count <= n; count++ {
		t.Run(fmt.Sprintf("drop %d", count), func(t *testing.T) {
			s, _ := newTestStore(t)
			for i := 0; i < n; i++ {
				require.NoError(t, s.AppendOutboxEvent(event(i)))
			}

			require.NoError(t, s.DropOutboxEvents(count))
			got, err := s.ReadOutboxEvents(n)
			require.NoError(t, err)

			require.Len(t, got, n-count)
			for i, ev := range got {
				assert.Equal(t, fmt.Sprintf("ev-%d", count+i), ev.ID)
			}
		})
	}
}

func TestOutbox_SkipsMalformedLines(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.AppendOutboxEvent(event(0)))

	f, err := os.OpenFile(s.outboxPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"id\": broken\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.AppendOutboxEvent(event(1)))

	got, err := s.ReadOutboxEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ev-0", got[0].ID)
	assert.Equal(t, "ev-1", got[1].ID)

	n, err := s.OutboxLen()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DropOutboxEvents(1))
	got, err = s.ReadOutboxEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ev-1", got[0].ID)
}

func TestOutbox_ReadLimitAndEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.ReadOutboxEvents(5)
	require.NoError(t, err)
	assert.Empty(t, got)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendOutboxEvent(event(i)))
	}
	got, err = s.ReadOutboxEvents(2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, s.DropOutboxEvents(100))
	n, err := s.OutboxLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutbox_SkipsOverlongLines(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.AppendOutboxEvent(event(0)))

	huge := model.OutboxEvent{
		ID:      "huge",
		Type:    "order.created",
		Payload: json.RawMessage(`"` + strings.Repeat("x", 5<<20) + `"`),
	}
	line, err := json.Marshal(huge)
	require.NoError(t, err)
	f, err := os.OpenFile(s.outboxPath, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.Write(append(line, '\n'))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.AppendOutboxEvent(event(1)))

	got, err := s.ReadOutboxEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ev-0", got[0].ID)
	assert.Equal(t, "ev-1", got[1].ID)

	n, err := s.OutboxLen()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DropOutboxEvents(1))
	got, err = s.ReadOutboxEvents(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ev-1", got[0].ID)

	data, err := os.ReadFile(s.outboxPath)
	require.NoError(t, err)
	assert.Less(t, len(data), 1024)
}

func TestOutbox_AppendRejectsOversizedEvent(t *testing.T) {
	s, _ := newTestStore(t)
	ev := event(0)
	ev.Payload = json.RawMessage(`"` + strings.Repeat("x", MaxEventSize) + `"`)

	err := s.AppendOutboxEvent(ev)
	assert.ErrorIs(t, err, ErrEventTooLarge)

	n, err := s.OutboxLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReadLines(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		limit    int
		expected []string
		overlong int
	}{
		{name: "Plain", input: "a\nbb\n", limit: 8, expected: []string{"a", "bb"}},
		{name: "No trailing newline", input: "a\nbb", limit: 8, expected: []string{"a", "bb"}},
		{name: "Blank lines dropped", input: "\n  \na\n\n", limit: 8, expected: []string{"a"}},
		{name: "Over-long middle line", input: "a\n0123456789\nb\n", limit: 4, expected: []string{"a", "b"}, overlong: 1},
		{name: "Over-long last line", input: "a\n0123456789", limit: 4, expected: []string{"a"}, overlong: 1},
		{name: "Exactly at limit", input: "abcd\n", limit: 4, expected: []string{"abcd"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lines, overlong, err := readLines(strings.NewReader(tc.input), tc.limit)
			require.NoError(t, err)
			got := make([]string, 0, len(lines))
			for _, l := range lines {
				got = append(got, string(l))
			}
			assert.Equal(t, tc.expected, got)
			assert.Equal(t, tc.overlong, overlong)
		})
	}
}
