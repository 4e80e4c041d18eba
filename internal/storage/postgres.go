package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// PostgresStorage persists to PostgreSQL through lib/pq.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage connects, pings and applies migrations.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStorage{db: db}, nil
}

// NewPostgresStorageWithDB wraps an existing, already migrated handle.
func NewPostgresStorageWithDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DB exposes the handle for health checks.
func (s *PostgresStorage) DB() *sql.DB { return s.db }

// Close releases the pool.
func (s *PostgresStorage) Close() error { return s.db.Close() }

func (s *PostgresStorage) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	var a models.Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, risk_level FROM accounts WHERE id = $1`, accountID,
	).Scan(&a.ID, &a.Name, &a.RiskLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

func (s *PostgresStorage) SaveAccount(ctx context.Context, acct *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, risk_level) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, risk_level = EXCLUDED.risk_level
	`, acct.ID, acct.Name, acct.RiskLevel)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SavePosition(ctx context.Context, pos *models.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			id, account_id, position_type, ticker, option_type, direction,
			strike, expiration, premium, contracts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			position_type = EXCLUDED.position_type,
			ticker = EXCLUDED.ticker,
			option_type = EXCLUDED.option_type,
			direction = EXCLUDED.direction,
			strike = EXCLUDED.strike,
			expiration = EXCLUDED.expiration,
			premium = EXCLUDED.premium,
			contracts = EXCLUDED.contracts
	`,
		pos.ID, pos.AccountID, string(pos.Type), pos.Ticker,
		nullString(string(pos.OptionType)), nullString(string(pos.Direction)),
		nullFloat(pos.Strike), nullTime(pos.Expiration), pos.Premium, pos.Contracts,
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

// ListOptionPositions returns option positions in insertion order.
func (s *PostgresStorage) ListOptionPositions(ctx context.Context, accountID string) ([]models.Position, error) {
	query := `
		SELECT id, account_id, position_type, ticker, option_type, direction,
		       strike, expiration, premium, contracts
		FROM positions
		WHERE position_type = 'option' AND ($1 = '' OR account_id = $1)
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		var p models.Position
		var posType string
		var optionType, direction sql.NullString
		var strike sql.NullFloat64
		var expiration sql.NullTime
		if err := rows.Scan(&p.ID, &p.AccountID, &posType, &p.Ticker, &optionType, &direction,
			&strike, &expiration, &p.Premium, &p.Contracts); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Type = models.PositionType(posType)
		p.OptionType = models.OptionSide(optionType.String)
		p.Direction = models.Direction(direction.String)
		p.Strike = strike.Float64
		if expiration.Valid {
			p.Expiration = expiration.Time.UTC()
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) InsertRecommendation(ctx context.Context, rec *models.Recommendation) error {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recommendations (
			id, position_id, account_id, symbol, ticker, option_type, direction,
			strike, expiration, contracts, action, reason, source,
			preliminary_action, preliminary_reason, risk_level, metrics, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		rec.ID, rec.PositionID, rec.AccountID, rec.Symbol, rec.Ticker,
		string(rec.OptionType), string(rec.Direction), rec.Strike, rec.Expiration, rec.Contracts,
		string(rec.Action), rec.Reason, string(rec.Source),
		string(rec.PreliminaryAction), rec.PreliminaryReason, rec.RiskLevel, metrics, rec.CreatedAt,
	)
	if err != nil {
		return wrapInsert("recommendation", rec.ID, err)
	}
	return nil
}

func (s *PostgresStorage) ListRecommendations(ctx context.Context, f RecommendationFilter) ([]models.Recommendation, error) {
	var where []string
	var args []any
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.PositionID != "" {
		args = append(args, f.PositionID)
		where = append(where, fmt.Sprintf("position_id = $%d", len(args)))
	}

	query := `
		SELECT id, position_id, account_id, symbol, ticker, option_type, direction,
		       strike, expiration, contracts, action, reason, source,
		       preliminary_action, preliminary_reason, risk_level, metrics, created_at
		FROM recommendations` + whereClause(where) + `
		ORDER BY created_at DESC, id`
	query += limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var out []models.Recommendation
	for rows.Next() {
		var r models.Recommendation
		var optionType, direction, action, source, prelim string
		var metrics []byte
		if err := rows.Scan(&r.ID, &r.PositionID, &r.AccountID, &r.Symbol, &r.Ticker,
			&optionType, &direction, &r.Strike, &r.Expiration, &r.Contracts,
			&action, &r.Reason, &source, &prelim, &r.PreliminaryReason, &r.RiskLevel,
			&metrics, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		r.OptionType = models.OptionSide(optionType)
		r.Direction = models.Direction(direction)
		r.Action = models.Action(action)
		r.Source = models.Source(source)
		r.PreliminaryAction = models.Action(prelim)
		r.Expiration = r.Expiration.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const alertColumns = `id, type, recommendation_id, position_id, account_id, account_name,
	symbol, ticker, recommendation, reason, severity, strategy, risk_level, strike,
	expiration, metrics, delivery_status, acknowledged, created_at`

func (s *PostgresStorage) InsertAlert(ctx context.Context, a *models.Alert) error {
	metrics, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	status := a.DeliveryStatus
	if status == nil {
		status = map[string]models.DeliveryRecord{}
	}
	delivery, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode delivery status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.Type, a.RecommendationID, a.PositionID, a.AccountID, a.AccountName,
		a.Symbol, a.Ticker, string(a.Recommendation), a.Reason, a.Severity, a.Strategy, a.RiskLevel,
		a.Strike, nullTime(a.Expiration), metrics, delivery, a.Acknowledged, a.CreatedAt,
	)
	if err != nil {
		return wrapInsert("alert", a.ID, err)
	}
	return nil
}

func (s *PostgresStorage) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return &alerts[0], nil
}

func (s *PostgresStorage) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	var where []string
	var args []any
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if !f.IncludeAcknowledged {
		where = append(where, "acknowledged = FALSE")
	}

	query := `SELECT ` + alertColumns + ` FROM alerts` + whereClause(where) +
		` ORDER BY created_at, id` + limitClause(f.Limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return scanAlerts(rows)
}

// UpdateAlertDelivery locks the row, validates the transition and writes
// the channel entry with jsonb_set.
func (s *PostgresStorage) UpdateAlertDelivery(ctx context.Context, alertID, channel string, rec models.DeliveryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT delivery_status FROM alerts WHERE id = $1 FOR UPDATE`, alertID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock alert: %w", err)
	}

	var current models.Alert
	if err := json.Unmarshal(raw, &current.DeliveryStatus); err != nil {
		return fmt.Errorf("decode delivery status: %w", err)
	}
	if err := current.SetDelivery(channel, rec); err != nil {
		return err
	}

	entry, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode delivery record: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = jsonb_set(delivery_status, ARRAY[$2::text], $3::jsonb, true) WHERE id = $1`,
		alertID, channel, entry,
	); err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStorage) AcknowledgeAlert(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alerts SET acknowledged = TRUE WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
	}
	return nil
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		var action string
		var expiration sql.NullTime
		var metrics, delivery []byte
		if err := rows.Scan(&a.ID, &a.Type, &a.RecommendationID, &a.PositionID, &a.AccountID, &a.AccountName,
			&a.Symbol, &a.Ticker, &action, &a.Reason, &a.Severity, &a.Strategy, &a.RiskLevel, &a.Strike,
			&expiration, &metrics, &delivery, &a.Acknowledged, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.Recommendation = models.Action(action)
		a.CreatedAt = a.CreatedAt.UTC()
		if expiration.Valid {
			a.Expiration = expiration.Time.UTC()
		}
		if err := json.Unmarshal(metrics, &a.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics for %s: %w", a.ID, err)
		}
		if err := json.Unmarshal(delivery, &a.DeliveryStatus); err != nil {
			return nil, fmt.Errorf("decode delivery status for %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func wrapInsert(kind, id string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s %s: %w", kind, id, ErrDuplicateID)
	}
	return fmt.Errorf("failed to insert %s: %w", kind, err)
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
