// Package tradelock persists the once-per-day trade record that lets a
// restarted process resume holding instead of buying again.
package tradelock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"daytrader/internal/interfaces"
	"daytrader/internal/types"
)

const DefaultPath = "daily_trading_lock.json"

// FileStore keeps the record in a single JSON file.
// Every write is flushed to stable storage before RecordTrade returns.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

var _ interfaces.TradeLockStore = (*FileStore)(nil)

// NewFileStore returns a store rooted at path. A nil clock means time.Now.
func NewFileStore(path string, now func() time.Time) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	if now == nil {
		now = time.Now
	}
	return &FileStore{path: path, now: now}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) HasTradeToday(ctx context.Context) (bool, error) {
	p, err := s.LoadTodayTrade(ctx)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

func (s *FileStore) LoadTodayTrade(ctx context.Context) (*types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", types.ErrPersistenceFailure, s.path, err)
	}
	return decodeRecord(b, s.now())
}

// RecordTrade overwrites the record with p. The write goes to a temp file in
// the same directory, is fsynced, renamed over the lock file, and the
// directory is fsynced so the rename itself survives a crash.
func (s *FileStore) RecordTrade(ctx context.Context, p types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := encodeRecord(p, s.now())
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", types.ErrPersistenceFailure, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %w", types.ErrPersistenceFailure, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write: %w", types.ErrPersistenceFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: fsync: %w", types.ErrPersistenceFailure, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close: %w", types.ErrPersistenceFailure, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename: %w", types.ErrPersistenceFailure, err)
	}
	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%w: fsync dir: %w", types.ErrPersistenceFailure, err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// encodeRecord stamps missing date fields from now and validates p.
func encodeRecord(p types.Position, now time.Time) ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: refusing to record incomplete position %+v", types.ErrPersistenceFailure, p)
	}
	if p.TradeDate == "" {
		p.TradeDate = types.TradeDate(now)
	}
	if p.TradeTime == "" {
		p.TradeTime = now.In(types.KST).Format(types.DateTimeLayout)
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", types.ErrPersistenceFailure, err)
	}
	return b, nil
}

// decodeRecord returns nil for a record from another day. A record that
// cannot be parsed, or today's record without a usable position, is an error:
// the caller must not trade on a lock it cannot trust.
func decodeRecord(b []byte, now time.Time) (*types.Position, error) {
	var p types.Position
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", types.ErrPersistenceFailure, err)
	}
	if p.TradeDate != types.TradeDate(now) {
		return nil, nil
	}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: today's record is incomplete (%s qty=%d price=%d)",
			types.ErrPersistenceFailure, p.Symbol, p.Quantity, p.BuyPrice)
	}
	return &p, nil
}
