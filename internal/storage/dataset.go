package storage

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// dataset is the in-memory model shared by the JSON and mock stores.
// Callers hold the owning store's lock.
type dataset struct {
	LastUpdated     time.Time               `json:"last_updated"`
	Accounts        []models.Account        `json:"accounts"`
	Positions       []models.Position       `json:"positions"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Alerts          []models.Alert          `json:"alerts"`
}

func (d *dataset) account(id string) (*models.Account, error) {
	for i := range d.Accounts {
		if d.Accounts[i].ID == id {
			acct := d.Accounts[i]
			return &acct, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
}

func (d *dataset) saveAccount(acct *models.Account) {
	for i := range d.Accounts {
		if d.Accounts[i].ID == acct.ID {
			d.Accounts[i] = *acct
			return
		}
	}
	d.Accounts = append(d.Accounts, *acct)
}

func (d *dataset) savePosition(pos *models.Position) {
	for i := range d.Positions {
		if d.Positions[i].ID == pos.ID {
			d.Positions[i] = *pos
			return
		}
	}
	d.Positions = append(d.Positions, *pos)
}

func (d *dataset) optionPositions(accountID string) []models.Position {
	out := make([]models.Position, 0, len(d.Positions))
	for _, p := range d.Positions {
		if p.Type != models.PositionTypeOption {
			continue
		}
		if accountID != "" && p.AccountID != accountID {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (d *dataset) insertRecommendation(rec *models.Recommendation) error {
	for i := range d.Recommendations {
		if d.Recommendations[i].ID == rec.ID {
			return fmt.Errorf("recommendation %s: %w", rec.ID, ErrDuplicateID)
		}
	}
	d.Recommendations = append(d.Recommendations, *rec)
	return nil
}

func (d *dataset) recommendations(f RecommendationFilter) []models.Recommendation {
	var out []models.Recommendation
	for i := len(d.Recommendations) - 1; i >= 0; i-- {
		r := d.Recommendations[i]
		if f.AccountID != "" && r.AccountID != f.AccountID {
			continue
		}
		if f.PositionID != "" && r.PositionID != f.PositionID {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (d *dataset) insertAlert(a *models.Alert) error {
	if d.alertIndex(a.ID) != -1 {
		return fmt.Errorf("alert %s: %w", a.ID, ErrDuplicateID)
	}
	d.Alerts = append(d.Alerts, cloneAlert(*a))
	return nil
}

func (d *dataset) alertIndex(id string) int {
	return slices.IndexFunc(d.Alerts, func(a models.Alert) bool { return a.ID == id })
}

func (d *dataset) alert(id string) (*models.Alert, error) {
	i := d.alertIndex(id)
	if i == -1 {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	a := cloneAlert(d.Alerts[i])
	return &a, nil
}

func (d *dataset) alerts(f AlertFilter) []models.Alert {
	var out []models.Alert
	for _, a := range d.Alerts {
		if f.AccountID != "" && a.AccountID != f.AccountID {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if a.Acknowledged && !f.IncludeAcknowledged {
			continue
		}
		out = append(out, cloneAlert(a))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (d *dataset) updateDelivery(alertID, channel string, rec models.DeliveryRecord) error {
	i := d.alertIndex(alertID)
	if i == -1 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return d.Alerts[i].SetDelivery(channel, rec)
}

func (d *dataset) acknowledge(alertID string) error {
	i := d.alertIndex(alertID)
	if i == -1 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	d.Alerts[i].Acknowledged = true
	return nil
}

func cloneAlert(a models.Alert) models.Alert {
	a.DeliveryStatus = maps.Clone(a.DeliveryStatus)
	return a
}
