// Package scanner turns open option positions into recommendations. Each
// position gets a rule-based decision; borderline ones are escalated to the
// oracle in bounded batches and fall back to the rules when it fails.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/oracle"
	"github.com/eddiefleurent/options_advisor/internal/rules"
)

// OracleUnavailableNote is appended to the rule-based reason when an
// escalated position could not get an oracle verdict.
const OracleUnavailableNote = " (oracle unavailable)"

// DefaultOracleTimeout bounds a single oracle call.
const DefaultOracleTimeout = 25 * time.Second

// PositionSource is the read side of persistence the scanner needs.
type PositionSource interface {
	ListOptionPositions(ctx context.Context, accountID string) ([]models.Position, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
}

// Config tunes a Scanner.
type Config struct {
	Now           func() time.Time
	Policy        rules.Policy
	OracleTimeout time.Duration
}

// Stats counts what happened during one scan.
type Stats struct {
	Processed       int `json:"processed"`
	Skipped         int `json:"skipped"`
	Escalated       int `json:"escalated"`
	OracleFallbacks int `json:"oracle_fallbacks"`
}

// Result is the output of ScanOptions. Recommendations follow the order in
// which positions were enumerated.
type Result struct {
	Recommendations []models.Recommendation `json:"recommendations"`
	Stats           Stats                   `json:"stats"`
}

// Scanner drives the rule evaluator and the oracle over an account's positions.
type Scanner struct {
	positions PositionSource
	market    marketdata.Provider
	oracle    oracle.Oracle
	logger    logrus.FieldLogger
	now       func() time.Time
	policy    rules.Policy
	timeout   time.Duration
}

// New creates a Scanner. A nil oracle disables escalation entirely.
func New(positions PositionSource, market marketdata.Provider, orc oracle.Oracle, cfg Config, logger logrus.FieldLogger) *Scanner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultOracleTimeout
	}
	if cfg.Policy.MaxParallel <= 0 {
		cfg.Policy.MaxParallel = rules.DefaultPolicy.MaxParallel
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{
		positions: positions,
		market:    market,
		oracle:    orc,
		logger:    logger,
		now:       cfg.Now,
		policy:    cfg.Policy,
		timeout:   cfg.OracleTimeout,
	}
}

// prelim is one scanned position before escalation.
type prelim struct {
	position   models.Position
	conditions *models.MarketConditions
	snapshot   models.MetricsSnapshot
	decision   rules.Decision
	riskLevel  string
	candidate  bool

	final  rules.Decision
	source models.Source
}

// ScanOptions evaluates every eligible option position of the account. An
// empty accountID scans all accounts. Only a failure to list positions is
// returned as an error; per-position problems are logged and skipped.
func (s *Scanner) ScanOptions(ctx context.Context, accountID string) (*Result, error) {
	positions, err := s.positions.ListOptionPositions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list option positions: %w", err)
	}

	result := &Result{Recommendations: make([]models.Recommendation, 0, len(positions))}
	risk := make(map[string]string)
	now := s.now()

	var scanned []*prelim
	for i := range positions {
		pos := positions[i]
		log := s.logger.WithFields(logrus.Fields{"position_id": pos.ID, "ticker": pos.Ticker})

		if !pos.IsEligible() {
			log.Debug("Skipping ineligible position")
			result.Stats.Skipped++
			continue
		}

		p, err := s.evaluate(ctx, pos, now)
		if err != nil {
			log.WithError(err).Warn("Skipping position, market data unavailable")
			result.Stats.Skipped++
			continue
		}
		p.riskLevel = s.riskLevel(ctx, risk, pos.AccountID)
		scanned = append(scanned, p)
	}

	s.escalate(ctx, scanned, &result.Stats)

	for _, p := range scanned {
		result.Recommendations = append(result.Recommendations, p.recommendation(now))
	}
	result.Stats.Processed = len(scanned)

	s.logger.WithFields(logrus.Fields{
		"account_id": accountID,
		"processed":  result.Stats.Processed,
		"skipped":    result.Stats.Skipped,
		"escalated":  result.Stats.Escalated,
		"fallbacks":  result.Stats.OracleFallbacks,
	}).Info("Options scan complete")

	return result, nil
}

func (s *Scanner) evaluate(ctx context.Context, pos models.Position, now time.Time) (*prelim, error) {
	metrics, err := s.market.GetOptionMetrics(ctx, pos.Ticker, pos.Expiration, pos.Strike, pos.OptionType)
	if err != nil {
		return nil, err
	}
	if metrics == nil {
		return nil, marketdata.ErrNoData
	}

	// Conditions only sharpen rule 5; scanning goes on without them.
	conditions, err := s.market.GetMarketConditions(ctx, pos.Ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", pos.Ticker).Debug("Market conditions unavailable")
		conditions = nil
	}

	snapshot := Snapshot(&pos, metrics, conditions, now)
	in := rules.Input{
		OptionSide:        pos.OptionType,
		DTE:               snapshot.DTE,
		PLPercent:         snapshot.PLPercent,
		IntrinsicValue:    metrics.IntrinsicValue,
		TimeValue:         metrics.TimeValue,
		Premium:           pos.Premium,
		ImpliedVolatility: metrics.ImpliedVolatility,
	}
	decision := rules.Evaluate(in, s.policy, conditions)

	return &prelim{
		position:   pos,
		conditions: conditions,
		snapshot:   snapshot,
		decision:   decision,
		candidate:  rules.IsCandidate(in, s.policy),
		final:      decision,
		source:     models.SourceRules,
	}, nil
}

func (s *Scanner) riskLevel(ctx context.Context, cache map[string]string, accountID string) string {
	if accountID == "" {
		return ""
	}
	if level, ok := cache[accountID]; ok {
		return level
	}
	level := ""
	acct, err := s.positions.GetAccount(ctx, accountID)
	if err != nil {
		s.logger.WithError(err).WithField("account_id", accountID).Debug("Account lookup failed")
	} else if acct != nil {
		level = acct.RiskLevel
	}
	cache[accountID] = level
	return level
}

// escalate sends candidates to the oracle in sequential batches of
// MaxParallel concurrent calls. Each goroutine owns one prelim, so results
// land without locking.
func (s *Scanner) escalate(ctx context.Context, scanned []*prelim, stats *Stats) {
	if s.oracle == nil {
		return
	}
	var candidates []*prelim
	for _, p := range scanned {
		if p.candidate {
			candidates = append(candidates, p)
		}
	}
	stats.Escalated = len(candidates)

	batch := s.policy.MaxParallel
	for start := 0; start < len(candidates); start += batch {
		end := min(start+batch, len(candidates))

		var g errgroup.Group
		for _, p := range candidates[start:end] {
			g.Go(func() error {
				s.consult(ctx, p)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, p := range candidates {
		if p.source != models.SourceAI {
			stats.OracleFallbacks++
		}
	}
}

func (s *Scanner) consult(ctx context.Context, p *prelim) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	verdict, err := s.oracle.Decide(callCtx, oracle.Request{
		Position:          p.position,
		Metrics:           p.snapshot,
		Conditions:        p.conditions,
		PreliminaryAction: p.decision.Action,
		PreliminaryReason: p.decision.Reason,
		RiskLevel:         p.riskLevel,
	})
	if err == nil && !verdict.Action.Valid() {
		err = oracle.ErrMalformedResponse
	}
	if err != nil {
		log := s.logger.WithFields(logrus.Fields{"position_id": p.position.ID, "ticker": p.position.Ticker})
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("Oracle timed out, using rule-based decision")
		default:
			log.WithError(err).Warn("Oracle unavailable, using rule-based decision")
		}
		p.final = rules.Decision{Action: p.decision.Action, Reason: p.decision.Reason + OracleUnavailableNote}
		p.source = models.SourceRules
		return
	}

	p.final = rules.Decision{Action: verdict.Action, Reason: verdict.Explanation}
	p.source = models.SourceAI
}

func (p *prelim) recommendation(now time.Time) models.Recommendation {
	pos := p.position
	return models.Recommendation{
		CreatedAt:         now.UTC(),
		Expiration:        pos.Expiration,
		ID:                uuid.NewString(),
		PositionID:        pos.ID,
		AccountID:         pos.AccountID,
		Symbol:            pos.Description(),
		Ticker:            pos.Ticker,
		OptionType:        pos.OptionType,
		Direction:         directionOf(pos),
		Action:            p.final.Action,
		Reason:            p.final.Reason,
		Source:            p.source,
		PreliminaryAction: p.decision.Action,
		PreliminaryReason: p.decision.Reason,
		RiskLevel:         p.riskLevel,
		Metrics:           p.snapshot,
		Strike:            pos.Strike,
		Contracts:         pos.Contracts,
	}
}

func directionOf(pos models.Position) models.Direction {
	if pos.IsShort() {
		return models.DirectionShort
	}
	return models.DirectionLong
}
