package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/events"
	"github.com/eddiefleurent/options_advisor/internal/models"
)

// CriticalAssignmentProbability marks short calls likely to be assigned.
const CriticalAssignmentProbability = 70.0

// Severity grades a recommendation: critical for short calls that are in
// the money or likely to be assigned, warning otherwise.
func Severity(rec *models.Recommendation) string {
	if !rec.IsShortCall() {
		return models.SeverityWarning
	}
	m := rec.Metrics
	itm := m.IntrinsicValue > 0 || (m.UnderlyingPrice > 0 && m.DistanceToStrikePercent < 0)
	if itm {
		return models.SeverityCritical
	}
	if p := m.AssignmentProbability; p != nil && *p >= CriticalAssignmentProbability {
		return models.SeverityCritical
	}
	return models.SeverityWarning
}

// BuildAlert creates the alert for a close recommendation. account may be nil.
func BuildAlert(rec *models.Recommendation, account *models.Account, now time.Time) *models.Alert {
	pos := rec.Position()
	alert := &models.Alert{
		CreatedAt:        now.UTC(),
		Expiration:       rec.Expiration,
		ID:               uuid.NewString(),
		Type:             models.JobTypeOptionsScan,
		RecommendationID: rec.ID,
		PositionID:       rec.PositionID,
		AccountID:        rec.AccountID,
		Symbol:           rec.Symbol,
		Ticker:           rec.Ticker,
		Recommendation:   rec.Action,
		Reason:           strings.TrimRight(strings.TrimSpace(rec.Reason), ".") + ". " + Summarize(rec),
		Severity:         Severity(rec),
		Strategy:         pos.StrategyLabel(),
		RiskLevel:        rec.RiskLevel,
		Metrics:          rec.Metrics,
		Strike:           rec.Strike,
	}
	if account != nil {
		alert.AccountName = account.Name
	}
	return alert
}

// RecordStore is the persistence the Recorder writes to.
type RecordStore interface {
	InsertRecommendation(ctx context.Context, rec *models.Recommendation) error
	InsertAlert(ctx context.Context, alert *models.Alert) error
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
}

// RecordStats counts what Persist wrote.
type RecordStats struct {
	Recommendations int `json:"recommendations"`
	Alerts          int `json:"alerts"`
}

// Recorder persists scan output and raises alerts for close actions.
type Recorder struct {
	store     RecordStore
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewRecorder creates a Recorder. A nil publisher disables events.
func NewRecorder(store RecordStore, publisher events.Publisher, logger logrus.FieldLogger) *Recorder {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Persist stores every recommendation and an alert for each close action.
// Store failures abort the run; event publishing failures are only logged.
func (r *Recorder) Persist(ctx context.Context, recs []models.Recommendation) (RecordStats, error) {
	var stats RecordStats
	accounts := make(map[string]*models.Account)

	for i := range recs {
		rec := &recs[i]
		if err := r.store.InsertRecommendation(ctx, rec); err != nil {
			return stats, fmt.Errorf("persist recommendation for %s: %w", rec.PositionID, err)
		}
		stats.Recommendations++
		if err := r.publisher.PublishRecommendation(ctx, rec); err != nil {
			r.logger.WithError(err).WithField("recommendation_id", rec.ID).Warn("Failed to publish recommendation event")
		}

		if !rec.Action.IsClose() {
			continue
		}

		alert := BuildAlert(rec, r.account(ctx, accounts, rec.AccountID), r.now())
		if err := r.store.InsertAlert(ctx, alert); err != nil {
			return stats, fmt.Errorf("persist alert for %s: %w", rec.PositionID, err)
		}
		stats.Alerts++
		r.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"ticker":   alert.Ticker,
			"action":   alert.Recommendation,
			"severity": alert.Severity,
		}).Info("Alert created")

		if err := r.publisher.PublishAlert(ctx, alert); err != nil {
			r.logger.WithError(err).WithField("alert_id", alert.ID).Warn("Failed to publish alert event")
		}
	}
	return stats, nil
}

func (r *Recorder) account(ctx context.Context, cache map[string]*models.Account, id string) *models.Account {
	if acct, ok := cache[id]; ok {
		return acct
	}
	acct, err := r.store.GetAccount(ctx, id)
	if err != nil {
		r.logger.WithError(err).WithField("account_id", id).Debug("Account lookup failed")
		acct = nil
	}
	cache[id] = acct
	return acct
}
