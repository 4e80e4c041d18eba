package storage

import (
	"context"
	"fmt"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// RecommendationFilter narrows ListRecommendations. Zero values match all.
type RecommendationFilter struct {
	AccountID  string
	PositionID string
	Limit      int
}

// AlertFilter narrows ListAlerts. Zero values match all.
type AlertFilter struct {
	AccountID           string
	Type                string
	IncludeAcknowledged bool
	Limit               int
}

// Interface defines the contract for accounts, positions, recommendations
// and alerts persistence.
//
// Implementations must be safe for concurrent use. Listing methods return
// copies; callers may modify them freely.
type Interface interface {
	// Accounts and positions
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	SaveAccount(ctx context.Context, acct *models.Account) error
	SavePosition(ctx context.Context, pos *models.Position) error
	// ListOptionPositions returns option positions in a stable order. An
	// empty accountID lists every account.
	ListOptionPositions(ctx context.Context, accountID string) ([]models.Position, error)

	// Recommendations, newest first
	InsertRecommendation(ctx context.Context, rec *models.Recommendation) error
	ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]models.Recommendation, error)

	// Alerts, oldest first so delivery follows creation order
	InsertAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]models.Alert, error)
	// UpdateAlertDelivery records one channel outcome. Transitions out of
	// sent are rejected with models.ErrAlreadySent.
	UpdateAlertDelivery(ctx context.Context, alertID, channel string, rec models.DeliveryRecord) error
	AcknowledgeAlert(ctx context.Context, alertID string) error

	Close() error
}

// Backend names accepted by Open
const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

// NewStorage creates the JSON file backed implementation.
func NewStorage(filepath string) (Interface, error) {
	s, err := NewJSONStorage(filepath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open creates the named backend. pathOrDSN is a file path for json and a
// connection string for postgres.
func Open(ctx context.Context, backend, pathOrDSN string) (Interface, error) {
	switch backend {
	case BackendJSON, "":
		return NewStorage(pathOrDSN)
	case BackendPostgres:
		s, err := NewPostgresStorage(ctx, pathOrDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
	_ Interface = (*PostgresStorage)(nil)
)
