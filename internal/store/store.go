package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pos-edge/internal/model"
)

var (
	// ErrNotPaired is returned when an operation requires a bound gateway.
	ErrNotPaired = errors.New("gateway is not paired")
	// ErrPrinterNotFound is returned when a printer id is unknown.
	ErrPrinterNotFound = errors.New("printer not found")
)

// Store defines the persistence operations of the gateway.
type Store interface {
	ReadConfig() *model.GatewayConfig
	WriteConfig(cfg *model.GatewayConfig) error
	Update(fn func(cfg *model.GatewayConfig) error) (*model.GatewayConfig, error)
	Reset() error

	Printers() []model.Printer
	Printer(id string) (model.Printer, error)
	AddPrinter(name, ip string, port int) (model.Printer, error)
	RemovePrinter(id string) (bool, error)

	AppendOutboxEvent(ev model.OutboxEvent) error
	ReadOutboxEvents(limit int) ([]model.OutboxEvent, error)
	DropOutboxEvents(count int) error
	OutboxLen() (int, error)
}

// FileStore keeps the gateway config in a JSON file and the outbox in a
// JSON-Lines file, both under a private data directory.
type FileStore struct {
	configPath string
	outboxPath string

	// mu serialises every read-modify-write of the config file.
	mu sync.Mutex
	// outboxMu guards appends against concurrent prefix drops.
	outboxMu sync.Mutex

	now func() time.Time
}

// NewFileStore creates a store rooted at the given paths.
func NewFileStore(configPath, outboxPath string) *FileStore {
	return &FileStore{
		configPath: configPath,
		outboxPath: outboxPath,
		now:        time.Now,
	}
}

// ReadConfig returns the stored config, or nil when the file is missing or
// malformed.
func (s *FileStore) ReadConfig() *model.GatewayConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readConfigLocked()
}

func (s *FileStore) readConfigLocked() *model.GatewayConfig {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", s.configPath).Msg("could not read gateway config")
		}
		return nil
	}
	var cfg model.GatewayConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn().Err(err).Str("path", s.configPath).Msg("gateway config is malformed, ignoring")
		return nil
	}
	return &cfg
}

// WriteConfig replaces the whole config atomically.
func (s *FileStore) WriteConfig(cfg *model.GatewayConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeConfigLocked(cfg)
}

func (s *FileStore) writeConfigLocked(cfg *model.GatewayConfig) error {
	if cfg.Printers == nil {
		cfg.Printers = []model.Printer{}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode gateway config: %w", err)
	}
	return writeFileAtomic(s.configPath, data)
}

// Update applies fn to the current config (an empty one when none is stored)
// and persists the result. Concurrent updates are applied one at a time.
func (s *FileStore) Update(fn func(cfg *model.GatewayConfig) error) (*model.GatewayConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.readConfigLocked()
	if cfg == nil {
		cfg = &model.GatewayConfig{}
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := s.writeConfigLocked(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Reset clears pairing, cloud URL and printers.
func (s *FileStore) Reset() error {
	return s.WriteConfig(&model.GatewayConfig{})
}

// Printers returns the configured printers.
func (s *FileStore) Printers() []model.Printer {
	cfg := s.ReadConfig()
	if cfg == nil || cfg.Printers == nil {
		return []model.Printer{}
	}
	return cfg.Printers
}

// Printer resolves a printer by id.
func (s *FileStore) Printer(id string) (model.Printer, error) {
	for _, p := range s.Printers() {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Printer{}, ErrPrinterNotFound
}

// AddPrinter registers a printer under a freshly generated id.
func (s *FileStore) AddPrinter(name, ip string, port int) (model.Printer, error) {
	p := model.Printer{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		IP:        strings.TrimSpace(ip),
		Port:      port,
		CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if p.IP == "" {
		return model.Printer{}, errors.New("ip is required")
	}
	if p.Port <= 0 {
		p.Port = 9100
	}
	if p.Name == "" {
		p.Name = p.IP
	}

	_, err := s.Update(func(cfg *model.GatewayConfig) error {
		cfg.Printers = append(cfg.Printers, p)
		return nil
	})
	if err != nil {
		return model.Printer{}, err
	}
	return p, nil
}

// RemovePrinter deletes a printer, reporting whether it existed.
func (s *FileStore) RemovePrinter(id string) (bool, error) {
	removed := false
	_, err := s.Update(func(cfg *model.GatewayConfig) error {
		kept := make([]model.Printer, 0, len(cfg.Printers))
		for _, p := range cfg.Printers {
			if p.ID == id {
				removed = true
				continue
			}
			kept = append(kept, p)
		}
		cfg.Printers = kept
		return nil
	})
	return removed, err
}

// writeFileAtomic writes data to a temp file next to path and renames it over
// path, so readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
