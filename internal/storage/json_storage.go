package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// JSONStorage keeps everything in one JSON document and rewrites it on
// every mutation through a temp file and rename.
type JSONStorage struct {
	data     *dataset
	filepath string
	mu       sync.RWMutex
}

// NewJSONStorage opens or creates the document at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     &dataset{},
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat storage file: %w", err)
	}
	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	data := &dataset{}
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("decode %s: %w", s.filepath, err)
	}
	s.data = data
	return nil
}

// save writes the document; callers hold the write lock.
func (s *JSONStorage) save() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	tmp := s.filepath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.filepath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// mutate runs fn under the write lock and persists on success. A failed
// save restores the previous document.
func (s *JSONStorage) mutate(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	if err := fn(s.data); err != nil {
		return err
	}
	if err := s.save(); err != nil {
		restored := &dataset{}
		if jerr := json.Unmarshal(before, restored); jerr == nil {
			s.data = restored
		}
		return err
	}
	return nil
}

// GetAccount returns the account or ErrNotFound.
func (s *JSONStorage) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.account(accountID)
}

// SaveAccount inserts or replaces an account.
func (s *JSONStorage) SaveAccount(_ context.Context, acct *models.Account) error {
	return s.mutate(func(d *dataset) error {
		d.saveAccount(acct)
		return nil
	})
}

// SavePosition inserts or replaces a position.
func (s *JSONStorage) SavePosition(_ context.Context, pos *models.Position) error {
	return s.mutate(func(d *dataset) error {
		d.savePosition(pos)
		return nil
	})
}

// ListOptionPositions returns option positions in file order.
func (s *JSONStorage) ListOptionPositions(_ context.Context, accountID string) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.optionPositions(accountID), nil
}

func (s *JSONStorage) InsertRecommendation(_ context.Context, rec *models.Recommendation) error {
	return s.mutate(func(d *dataset) error { return d.insertRecommendation(rec) })
}

func (s *JSONStorage) ListRecommendations(_ context.Context, f RecommendationFilter) ([]models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.recommendations(f), nil
}

func (s *JSONStorage) InsertAlert(_ context.Context, alert *models.Alert) error {
	return s.mutate(func(d *dataset) error { return d.insertAlert(alert) })
}

func (s *JSONStorage) GetAlert(_ context.Context, alertID string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.alert(alertID)
}

func (s *JSONStorage) ListAlerts(_ context.Context, f AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.alerts(f), nil
}

func (s *JSONStorage) UpdateAlertDelivery(_ context.Context, alertID, channel string, rec models.DeliveryRecord) error {
	return s.mutate(func(d *dataset) error { return d.updateDelivery(alertID, channel, rec) })
}

func (s *JSONStorage) AcknowledgeAlert(_ context.Context, alertID string) error {
	return s.mutate(func(d *dataset) error { return d.acknowledge(alertID) })
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStorage) Close() error { return nil }
