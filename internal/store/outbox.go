package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"pos-edge/internal/model"
)

// MaxEventSize bounds a single encoded outbox record. Longer lines found on
// disk are treated as malformed and skipped.
const MaxEventSize = 1 << 20

// ErrEventTooLarge is returned when an event encodes to more than
// MaxEventSize bytes.
var ErrEventTooLarge = errors.New("event exceeds the maximum outbox record size")

// AppendOutboxEvent appends one JSON line to the outbox.
func (s *FileStore) AppendOutboxEvent(ev model.OutboxEvent) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode outbox event %q: %w", ev.ID, err)
	}
	if len(line) > MaxEventSize {
		return fmt.Errorf("%w: %q is %d bytes", ErrEventTooLarge, ev.ID, len(line))
	}
	line = append(line, '\n')

	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.outboxPath), 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	f, err := os.OpenFile(s.outboxPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open outbox: %w", err)
	}
	// A single write of the whole line keeps concurrent readers from seeing
	// a partial record.
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append outbox event: %w", err)
	}
	return f.Close()
}

// ReadOutboxEvents returns up to limit events from the front of the outbox.
// Lines that fail to parse are skipped.
func (s *FileStore) ReadOutboxEvents(limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		return []model.OutboxEvent{}, nil
	}

	s.outboxMu.Lock()
	lines, err := s.readOutboxLinesLocked()
	s.outboxMu.Unlock()
	if err != nil {
		return nil, err
	}

	events := make([]model.OutboxEvent, 0, min(limit, len(lines)))
	for _, line := range lines {
		ev, ok := decodeOutboxLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

// DropOutboxEvents removes the first count events from the outbox and
// rewrites the file. Malformed lines lying inside the dropped prefix, and
// over-long lines anywhere, are discarded.
func (s *FileStore) DropOutboxEvents(count int) error {
	if count <= 0 {
		return nil
	}

	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	lines, err := s.readOutboxLinesLocked()
	if err != nil {
		return err
	}

	cut, dropped := 0, 0
	for cut < len(lines) && dropped < count {
		if _, ok := decodeOutboxLine(lines[cut]); ok {
			dropped++
		}
		cut++
	}

	var buf bytes.Buffer
	for _, line := range lines[cut:] {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if err := writeFileAtomic(s.outboxPath, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to rewrite outbox: %w", err)
	}
	log.Debug().Int("dropped", dropped).Int("remaining_lines", len(lines)-cut).Msg("outbox prefix dropped")
	return nil
}

// OutboxLen counts the parseable events currently queued.
func (s *FileStore) OutboxLen() (int, error) {
	s.outboxMu.Lock()
	lines, err := s.readOutboxLinesLocked()
	s.outboxMu.Unlock()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, line := range lines {
		if _, ok := decodeOutboxLine(line); ok {
			n++
		}
	}
	return n, nil
}

func (s *FileStore) readOutboxLinesLocked() ([][]byte, error) {
	f, err := os.Open(s.outboxPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	defer f.Close()

	lines, overlong, err := readLines(f, MaxEventSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	if overlong > 0 {
		log.Warn().Int("lines", overlong).Msg("skipped over-long outbox lines")
	}
	return lines, nil
}

// readLines splits r into trimmed, non-empty lines. Lines longer than limit
// are discarded up to their newline and counted in overlong.
func readLines(r io.Reader, limit int) (lines [][]byte, overlong int, err error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		cur     []byte
		tooLong bool
	)
	for {
		chunk, rerr := br.ReadSlice('\n')
		if !tooLong {
			if len(cur)+len(chunk) > limit+1 {
				tooLong, cur = true, nil
			} else {
				cur = append(cur, chunk...)
			}
		}
		if errors.Is(rerr, bufio.ErrBufferFull) {
			continue
		}
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return nil, overlong, rerr
		}

		if tooLong {
			overlong++
		} else if line := bytes.TrimSpace(cur); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		cur, tooLong = cur[:0], false

		if rerr != nil {
			return lines, overlong, nil
		}
	}
}

func decodeOutboxLine(line []byte) (model.OutboxEvent, bool) {
	var ev model.OutboxEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return model.OutboxEvent{}, false
	}
	if ev.ID == "" || ev.Type == "" {
		return model.OutboxEvent{}, false
	}
	return ev, true
}
