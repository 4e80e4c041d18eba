package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

// DefaultSendTimeout bounds one outbound channel call.
const DefaultSendTimeout = 10 * time.Second

// DeliveryStore is the persistence the Dispatcher reads and writes.
type DeliveryStore interface {
	ListAlerts(ctx context.Context, filter storage.AlertFilter) ([]models.Alert, error)
	UpdateAlertDelivery(ctx context.Context, alertID, channel string, rec models.DeliveryRecord) error
}

// ConfigSource supplies the alert configs for a job type, disabled ones
// included so an account can opt out of a job-wide config.
type ConfigSource interface {
	AlertConfigs(ctx context.Context, jobType string) ([]models.AlertConfig, error)
}

// StaticConfigs serves configs loaded at startup.
type StaticConfigs []models.AlertConfig

// AlertConfigs returns the configs registered for jobType.
func (s StaticConfigs) AlertConfigs(_ context.Context, jobType string) ([]models.AlertConfig, error) {
	var out []models.AlertConfig
	for _, c := range s {
		if c.JobType == jobType {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeliveryStats are the aggregate counters of one delivery run. Processed
// counts alerts examined; Delivered and Failed count channel attempts;
// Skipped counts alerts held back by gating or already fully sent.
type DeliveryStats struct {
	Processed int `json:"processed"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// DispatcherConfig tunes a Dispatcher.
type DispatcherConfig struct {
	Now         func() time.Time
	SendTimeout time.Duration
}

// Dispatcher delivers pending alerts across channels.
type Dispatcher struct {
	store     DeliveryStore
	configs   ConfigSource
	formatter *Formatter
	channels  map[string]Channel
	logger    logrus.FieldLogger
	now       func() time.Time
	timeout   time.Duration
}

// NewDispatcher creates a Dispatcher. Channels are keyed by Name().
func NewDispatcher(store DeliveryStore, configs ConfigSource, formatter *Formatter, channels []Channel,
	cfg DispatcherConfig, logger logrus.FieldLogger) *Dispatcher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		store:     store,
		configs:   configs,
		formatter: formatter,
		channels:  byName,
		logger:    logger,
		now:       cfg.Now,
		timeout:   cfg.SendTimeout,
	}
}

// Deliver sends every unacknowledged alert of jobType to the channels its
// config names. A job type with no enabled config is skipped without error.
// Channel failures are recorded on the alert and never stop the run. Failing
// to load configs, list alerts or record a delivery outcome aborts the run
// and is returned with the counters so far.
func (d *Dispatcher) Deliver(ctx context.Context, jobType string) (DeliveryStats, error) {
	var stats DeliveryStats

	configs, err := d.configs.AlertConfigs(ctx, jobType)
	if err != nil {
		return stats, fmt.Errorf("load alert configs for %s: %w", jobType, err)
	}
	resolver := newConfigResolver(configs)
	if !resolver.anyEnabled() {
		d.logger.WithField("job_type", jobType).Debug("No enabled alert config, skipping delivery")
		return stats, nil
	}

	alerts, err := d.store.ListAlerts(ctx, storage.AlertFilter{Type: jobType})
	if err != nil {
		return stats, fmt.Errorf("list alerts for %s: %w", jobType, err)
	}

	now := d.now()
	for i := range alerts {
		alert := &alerts[i]
		stats.Processed++
		log := d.logger.WithFields(logrus.Fields{"alert_id": alert.ID, "ticker": alert.Ticker})

		cfg := resolver.forAccount(alert.AccountID)
		switch {
		case cfg == nil || !cfg.Enabled:
			log.Debug("No enabled alert config for account")
			stats.Skipped++
			continue
		case cfg.InQuietHours(now):
			log.Debug("Quiet hours, holding alert")
			stats.Skipped++
			continue
		case !cfg.Thresholds.Meets(alert.Metrics):
			log.Debug("Alert below delivery thresholds")
			stats.Skipped++
			continue
		}

		attempted := false
		for _, name := range cfg.Channels {
			if alert.IsSent(name) {
				continue
			}
			ch, ok := d.channels[name]
			if !ok {
				log.WithField("channel", name).Warn("Channel not configured, skipping")
				continue
			}
			attempted = true
			ok, err := d.send(ctx, alert, cfg.TemplateID, ch, log)
			if err != nil {
				return stats, err
			}
			if ok {
				stats.Delivered++
			} else {
				stats.Failed++
			}
		}
		if !attempted {
			stats.Skipped++
		}
	}

	d.logger.WithFields(logrus.Fields{
		"job_type":  jobType,
		"processed": stats.Processed,
		"delivered": stats.Delivered,
		"failed":    stats.Failed,
		"skipped":   stats.Skipped,
	}).Info("Alert delivery complete")
	return stats, nil
}

// send makes one outbound attempt and records its outcome. It reports whether
// the channel accepted the text; an error means the outcome could not be
// recorded, so the alert would be resent on the next run.
func (d *Dispatcher) send(ctx context.Context, alert *models.Alert, templateID string, ch Channel, log logrus.FieldLogger) (bool, error) {
	text := d.formatter.Render(templateID, alert, ch.MaxLength())

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	var err error
	if as, ok := ch.(AlertSender); ok {
		err = as.SendAlert(sendCtx, alert, text)
	} else {
		err = ch.Send(sendCtx, text)
	}
	cancel()

	rec := models.DeliveryRecord{AttemptedAt: d.now().UTC(), Status: models.DeliverySent}
	if err != nil {
		rec.Status = models.DeliveryFailed
		rec.Error = err.Error()
		log.WithError(err).WithField("channel", ch.Name()).Warn("Alert delivery failed")
	} else {
		log.WithField("channel", ch.Name()).Info("Alert delivered")
	}

	if werr := d.store.UpdateAlertDelivery(ctx, alert.ID, ch.Name(), rec); werr != nil {
		if !errors.Is(werr, models.ErrAlreadySent) {
			log.WithError(werr).WithField("channel", ch.Name()).Error("Failed to record delivery status")
			return false, fmt.Errorf("record %s delivery for alert %s: %w", ch.Name(), alert.ID, werr)
		}
		log.WithField("channel", ch.Name()).Debug("Channel already marked sent")
	}
	_ = alert.SetDelivery(ch.Name(), rec)
	return err == nil, nil
}

type configResolver struct {
	jobWide   *models.AlertConfig
	byAccount map[string]*models.AlertConfig
	configs   []models.AlertConfig
}

func newConfigResolver(configs []models.AlertConfig) *configResolver {
	r := &configResolver{configs: configs, byAccount: make(map[string]*models.AlertConfig)}
	for i := range r.configs {
		c := &r.configs[i]
		if c.AccountID == "" {
			if r.jobWide == nil {
				r.jobWide = c
			}
			continue
		}
		if _, ok := r.byAccount[c.AccountID]; !ok {
			r.byAccount[c.AccountID] = c
		}
	}
	return r
}

func (r *configResolver) anyEnabled() bool {
	for _, c := range r.configs {
		if c.Enabled {
			return true
		}
	}
	return false
}

// forAccount prefers the account's own config over the job-wide one.
func (r *configResolver) forAccount(accountID string) *models.AlertConfig {
	if c, ok := r.byAccount[accountID]; ok {
		return c
	}
	return r.jobWide
}
