// Package jobs runs the scan and delivery cycles, on demand or on a cron
// schedule.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/scanner"
)

// ErrBusy is returned when a cycle of the same kind is already running.
var ErrBusy = errors.New("job already running")

// Scanner produces recommendations for one account.
type Scanner interface {
	ScanOptions(ctx context.Context, accountID string) (*scanner.Result, error)
}

// Recorder persists recommendations and raises alerts.
type Recorder interface {
	Persist(ctx context.Context, recs []models.Recommendation) (alerts.RecordStats, error)
}

// Deliverer sends pending alerts of a job type.
type Deliverer interface {
	Deliver(ctx context.Context, jobType string) (alerts.DeliveryStats, error)
}

// AccountReport is the outcome of scanning one account.
type AccountReport struct {
	AccountID string             `json:"account_id"`
	Error     string             `json:"error,omitempty"`
	Scan      scanner.Stats      `json:"scan"`
	Recorded  alerts.RecordStats `json:"recorded"`
}

// ScanReport summarizes one scan cycle across all accounts.
type ScanReport struct {
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Accounts   []AccountReport    `json:"accounts"`
	Totals     scanner.Stats      `json:"totals"`
	Recorded   alerts.RecordStats `json:"recorded"`
	Failed     int                `json:"failed_accounts"`
}

// Runner wires the scanner, recorder and dispatcher into cycles.
type Runner struct {
	scanner    Scanner
	recorder   Recorder
	dispatcher Deliverer
	logger     logrus.FieldLogger
	now        func() time.Time
	accounts   []string
	scanMu     sync.Mutex
	deliverMu  sync.Mutex
}

// NewRunner creates a Runner over the given accounts.
func NewRunner(accounts []string, s Scanner, r Recorder, d Deliverer, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		scanner:    s,
		recorder:   r,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
		accounts:   accounts,
	}
}

// Accounts returns the configured account ids.
func (r *Runner) Accounts() []string { return r.accounts }

// RunScan scans every account and persists the results. A failing account
// is reported and does not stop the others. Returns ErrBusy if a scan is
// already in progress.
func (r *Runner) RunScan(ctx context.Context) (*ScanReport, error) {
	if !r.scanMu.TryLock() {
		return nil, ErrBusy
	}
	defer r.scanMu.Unlock()

	report := &ScanReport{StartedAt: r.now().UTC()}
	for _, accountID := range r.accounts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ar := r.scanAccount(ctx, accountID)
		if ar.Error != "" {
			report.Failed++
		}
		report.Totals.Processed += ar.Scan.Processed
		report.Totals.Skipped += ar.Scan.Skipped
		report.Totals.Escalated += ar.Scan.Escalated
		report.Totals.OracleFallbacks += ar.Scan.OracleFallbacks
		report.Recorded.Recommendations += ar.Recorded.Recommendations
		report.Recorded.Alerts += ar.Recorded.Alerts
		report.Accounts = append(report.Accounts, ar)
	}
	report.FinishedAt = r.now().UTC()

	r.logger.WithFields(logrus.Fields{
		"accounts":        len(r.accounts),
		"failed":          report.Failed,
		"processed":       report.Totals.Processed,
		"escalated":       report.Totals.Escalated,
		"recommendations": report.Recorded.Recommendations,
		"alerts":          report.Recorded.Alerts,
	}).Info("Scan cycle complete")
	return report, nil
}

func (r *Runner) scanAccount(ctx context.Context, accountID string) AccountReport {
	ar := AccountReport{AccountID: accountID}
	log := r.logger.WithField("account_id", accountID)

	result, err := r.scanner.ScanOptions(ctx, accountID)
	if err != nil {
		log.WithError(err).Error("Scan failed")
		ar.Error = err.Error()
		return ar
	}
	ar.Scan = result.Stats

	recorded, err := r.recorder.Persist(ctx, result.Recommendations)
	ar.Recorded = recorded
	if err != nil {
		log.WithError(err).Error("Failed to persist scan results")
		ar.Error = err.Error()
	}
	return ar
}

// RunDelivery sends pending scan alerts. Returns ErrBusy if a delivery is
// already in progress.
func (r *Runner) RunDelivery(ctx context.Context) (alerts.DeliveryStats, error) {
	if !r.deliverMu.TryLock() {
		return alerts.DeliveryStats{}, ErrBusy
	}
	defer r.deliverMu.Unlock()
	return r.dispatcher.Deliver(ctx, models.JobTypeOptionsScan)
}

// RunCycle scans, then delivers whatever the scan raised.
func (r *Runner) RunCycle(ctx context.Context) {
	if _, err := r.RunScan(ctx); err != nil {
		r.logger.WithError(err).Warn("Scan cycle skipped")
		return
	}
	if _, err := r.RunDelivery(ctx); err != nil {
		r.logger.WithError(err).Warn("Delivery after scan failed")
	}
}
