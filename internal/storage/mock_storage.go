package storage

import (
	"context"
	"sync"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// MockStorage is an in-memory Interface for tests with error injection.
type MockStorage struct {
	data *dataset

	// Injected errors, returned before the call touches data
	ListError     error
	InsertError   error
	DeliveryError error

	mu                 sync.Mutex
	insertAlertCalls   int
	deliveryWriteCalls int
}

// NewMockStorage creates an empty mock store.
func NewMockStorage() *MockStorage {
	return &MockStorage{data: &dataset{}}
}

func (m *MockStorage) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.account(accountID)
}

func (m *MockStorage) SaveAccount(_ context.Context, acct *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveAccount(acct)
	return nil
}

func (m *MockStorage) SavePosition(_ context.Context, pos *models.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.savePosition(pos)
	return nil
}

func (m *MockStorage) ListOptionPositions(_ context.Context, accountID string) ([]models.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.data.optionPositions(accountID), nil
}

func (m *MockStorage) InsertRecommendation(_ context.Context, rec *models.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertError != nil {
		return m.InsertError
	}
	return m.data.insertRecommendation(rec)
}

func (m *MockStorage) ListRecommendations(_ context.Context, f RecommendationFilter) ([]models.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.recommendations(f), nil
}

func (m *MockStorage) InsertAlert(_ context.Context, alert *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertAlertCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	return m.data.insertAlert(alert)
}

func (m *MockStorage) GetAlert(_ context.Context, alertID string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.alert(alertID)
}

func (m *MockStorage) ListAlerts(_ context.Context, f AlertFilter) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	return m.data.alerts(f), nil
}

func (m *MockStorage) UpdateAlertDelivery(_ context.Context, alertID, channel string, rec models.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryWriteCalls++
	if m.DeliveryError != nil {
		return m.DeliveryError
	}
	return m.data.updateDelivery(alertID, channel, rec)
}

func (m *MockStorage) AcknowledgeAlert(_ context.Context, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.acknowledge(alertID)
}

func (m *MockStorage) Close() error { return nil }

// InsertAlertCalls returns how many times InsertAlert was called.
func (m *MockStorage) InsertAlertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertAlertCalls
}

// DeliveryWriteCalls returns how many times UpdateAlertDelivery was called.
func (m *MockStorage) DeliveryWriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deliveryWriteCalls
}
