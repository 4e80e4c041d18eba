package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Thresholds gate delivery on an alert's metrics. Nil fields are unchecked.
type Thresholds struct {
	MinPLPercent *float64 `yaml:"min_pl_percent,omitempty" json:"min_pl_percent,omitempty"`
	MaxDTE       *int     `yaml:"max_dte,omitempty" json:"max_dte,omitempty"`
}

// Meets reports whether |P/L%| and DTE of the snapshot pass the thresholds.
func (t Thresholds) Meets(m MetricsSnapshot) bool {
	if t.MinPLPercent != nil && math.Abs(m.PLPercent) < *t.MinPLPercent {
		return false
	}
	if t.MaxDTE != nil && m.DTE > *t.MaxDTE {
		return false
	}
	return true
}

// QuietHours is a local time-of-day window during which delivery is held.
type QuietHours struct {
	Start    string `yaml:"start" json:"start"` // HH:MM
	End      string `yaml:"end" json:"end"`     // HH:MM
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// IsZero reports whether no window was configured.
func (q *QuietHours) IsZero() bool {
	return q == nil || (q.Start == "" && q.End == "")
}

// Validate checks the clock strings and timezone name.
func (q *QuietHours) Validate() error {
	if q.IsZero() {
		return nil
	}
	if _, err := ParseClock(q.Start); err != nil {
		return fmt.Errorf("quiet_hours.start: %w", err)
	}
	if _, err := ParseClock(q.End); err != nil {
		return fmt.Errorf("quiet_hours.end: %w", err)
	}
	if _, err := q.location(); err != nil {
		return fmt.Errorf("quiet_hours.timezone: %w", err)
	}
	return nil
}

// Contains reports whether now falls in the window. Windows whose end is
// earlier than their start wrap midnight. Start is inclusive, end exclusive.
// An unparsable window never matches.
func (q *QuietHours) Contains(now time.Time) bool {
	if q.IsZero() {
		return false
	}
	start, err := ParseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(q.End)
	if err != nil {
		return false
	}
	loc, err := q.location()
	if err != nil {
		return false
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case start == end:
		return false
	case start < end:
		return minute >= start && minute < end
	default:
		return minute >= start || minute < end
	}
}

func (q *QuietHours) location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(q.Timezone)
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// AlertConfig controls how alerts of one job type are delivered. An entry
// with AccountID set overrides the job-wide entry for that account.
type AlertConfig struct {
	QuietHours *QuietHours `yaml:"quiet_hours,omitempty" json:"quiet_hours,omitempty"`
	JobType    string      `yaml:"job_type" json:"job_type"`
	AccountID  string      `yaml:"account_id,omitempty" json:"account_id,omitempty"`
	TemplateID string      `yaml:"template,omitempty" json:"template,omitempty"`
	Channels   []string    `yaml:"channels" json:"channels"`
	Thresholds Thresholds  `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
	Enabled    bool        `yaml:"enabled" json:"enabled"`
}

// InQuietHours reports whether delivery is currently suppressed.
func (c *AlertConfig) InQuietHours(now time.Time) bool {
	return c.QuietHours.Contains(now)
}
