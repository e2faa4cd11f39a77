package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vitos/cheeseball/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			preferred_currency TEXT NOT NULL DEFAULT 'usd',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			is_admin BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS watchlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			coin_id TEXT NOT NULL,
			coin_symbol TEXT NOT NULL,
			coin_name TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			UNIQUE (user_id, coin_id)
		);`,
		`CREATE TABLE IF NOT EXISTS portfolios (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			coin_id TEXT NOT NULL,
			amount REAL NOT NULL,
			purchase_price REAL NOT NULL,
			purchase_currency TEXT NOT NULL DEFAULT 'usd',
			purchase_date DATETIME NOT NULL,
			notes TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_portfolios_user ON portfolios(user_id);`,
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			coin_id TEXT NOT NULL,
			target_price REAL NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			is_above BOOLEAN NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			triggered_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_alerts_user ON price_alerts(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_price_alerts_active ON price_alerts(is_active);`,
		`CREATE TABLE IF NOT EXISTS password_resets (
			email TEXT PRIMARY KEY,
			code_hash TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			verified_at DATETIME
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}

	// Older databases predate alert triggering; the error for an existing column is ignored.
	_, _ = s.db.Exec(`ALTER TABLE price_alerts ADD COLUMN triggered_at DATETIME`)

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFoundIfNoRows(err error, detail string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewError(domain.ErrNotFound, detail)
	}
	return err
}

func requireAffected(res sql.Result, detail string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewError(domain.ErrNotFound, detail)
	}
	return nil
}

// UserRepository Implementation

const userColumns = `id, username, email, hashed_password, preferred_currency, is_active, is_admin, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.PreferredCurrency, &u.IsActive, &u.IsAdmin, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (username, email, hashed_password, preferred_currency, is_active, is_admin, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		user.Username, user.Email, user.HashedPassword, user.PreferredCurrency, user.IsActive, user.IsAdmin, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewError(domain.ErrConflict, "Username or email already registered")
		}
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "User not found")
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "User not found")
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err != nil {
		return nil, notFoundIfNoRows(err, "Email not found")
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "User not found")
}

func (s *SQLiteStore) SetUserAdmin(ctx context.Context, id int64, admin bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, admin, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "User not found")
}

func (s *SQLiteStore) UpdatePassword(ctx context.Context, id int64, hashedPassword string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET hashed_password = ? WHERE id = ?`, hashedPassword, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "User not found")
}

func (s *SQLiteStore) Statistics(ctx context.Context) (*domain.Statistics, error) {
	query := `SELECT
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM watchlists),
		(SELECT COUNT(*) FROM portfolios),
		(SELECT COUNT(*) FROM price_alerts)`
	var st domain.Statistics
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.TotalUsers, &st.TotalWatchlists, &st.TotalPortfolios, &st.TotalAlerts); err != nil {
		return nil, err
	}
	return &st, nil
}

// WatchlistRepository Implementation

func (s *SQLiteStore) AddWatchlistItem(ctx context.Context, item *domain.WatchlistItem) error {
	query := `INSERT INTO watchlists (user_id, coin_id, coin_symbol, coin_name, created_at)
			  VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, item.UserID, item.CoinID, item.CoinSymbol, item.CoinName, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewError(domain.ErrConflict, "Coin already in watchlist")
		}
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListWatchlist(ctx context.Context, userID int64) ([]*domain.WatchlistItem, error) {
	query := `SELECT id, user_id, coin_id, coin_symbol, coin_name, created_at FROM watchlists WHERE user_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.WatchlistItem
	for rows.Next() {
		var w domain.WatchlistItem
		if err := rows.Scan(&w.ID, &w.UserID, &w.CoinID, &w.CoinSymbol, &w.CoinName, &w.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &w)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) DeleteWatchlistItem(ctx context.Context, userID int64, coinID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM watchlists WHERE user_id = ? AND coin_id = ?", userID, coinID)
	if err != nil {
		return err
	}
	return requireAffected(res, "Coin not found in watchlist")
}

// PortfolioRepository Implementation

func (s *SQLiteStore) AddPortfolioItem(ctx context.Context, item *domain.PortfolioItem) error {
	query := `INSERT INTO portfolios (user_id, coin_id, amount, purchase_price, purchase_currency, purchase_date, notes)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		item.UserID, item.CoinID, item.Amount, item.PurchasePrice, item.PurchaseCurrency, item.PurchaseDate, item.Notes)
	if err != nil {
		return err
	}
	item.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListPortfolio(ctx context.Context, userID int64) ([]*domain.PortfolioItem, error) {
	query := `SELECT id, user_id, coin_id, amount, purchase_price, purchase_currency, purchase_date, notes FROM portfolios WHERE user_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.PortfolioItem
	for rows.Next() {
		var p domain.PortfolioItem
		var notes sql.NullString
		if err := rows.Scan(&p.ID, &p.UserID, &p.CoinID, &p.Amount, &p.PurchasePrice, &p.PurchaseCurrency, &p.PurchaseDate, &notes); err != nil {
			return nil, err
		}
		if notes.Valid {
			p.Notes = &notes.String
		}
		items = append(items, &p)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) DeletePortfolioItem(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM portfolios WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "Portfolio item not found")
}

// AlertRepository Implementation

const alertColumns = `id, user_id, coin_id, target_price, currency, is_above, is_active, created_at, triggered_at`

func scanAlert(row interface{ Scan(...any) error }) (*domain.PriceAlert, error) {
	var a domain.PriceAlert
	var triggered sql.NullTime
	if err := row.Scan(&a.ID, &a.UserID, &a.CoinID, &a.TargetPrice, &a.Currency, &a.IsAbove, &a.IsActive, &a.CreatedAt, &triggered); err != nil {
		return nil, err
	}
	if triggered.Valid {
		a.TriggeredAt = &triggered.Time
	}
	return &a, nil
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *domain.PriceAlert) error {
	query := `INSERT INTO price_alerts (user_id, coin_id, target_price, currency, is_above, is_active, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query,
		alert.UserID, alert.CoinID, alert.TargetPrice, alert.Currency, alert.IsAbove, alert.IsActive, alert.CreatedAt)
	if err != nil {
		return err
	}
	alert.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...any) ([]*domain.PriceAlert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.PriceAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, userID int64) ([]*domain.PriceAlert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE user_id = ? ORDER BY id`, userID)
}

func (s *SQLiteStore) ListActiveAlerts(ctx context.Context) ([]*domain.PriceAlert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM price_alerts WHERE is_active = 1 ORDER BY id`)
}

func (s *SQLiteStore) MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE price_alerts SET is_active = 0, triggered_at = ? WHERE id = ? AND is_active = 1`, at.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res, "Alert not found")
}

func (s *SQLiteStore) DeleteAlert(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM price_alerts WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}
	return requireAffected(res, "Alert not found")
}

// PasswordResetRepository Implementation

func (s *SQLiteStore) SavePasswordReset(ctx context.Context, reset *domain.PasswordReset) error {
	query := `INSERT INTO password_resets (email, code_hash, expires_at, attempts, verified_at)
			  VALUES (?, ?, ?, ?, ?)
			  ON CONFLICT(email) DO UPDATE SET
			  code_hash=excluded.code_hash,
			  expires_at=excluded.expires_at,
			  attempts=excluded.attempts,
			  verified_at=excluded.verified_at`
	var verified *time.Time
	if reset.VerifiedAt != nil {
		v := reset.VerifiedAt.UTC()
		verified = &v
	}
	_, err := s.db.ExecContext(ctx, query, reset.Email, reset.CodeHash, reset.ExpiresAt.UTC(), reset.Attempts, verified)
	return err
}

func (s *SQLiteStore) GetPasswordReset(ctx context.Context, email string) (*domain.PasswordReset, error) {
	query := `SELECT email, code_hash, expires_at, attempts, verified_at FROM password_resets WHERE email = ?`
	var r domain.PasswordReset
	var verified sql.NullTime
	err := s.db.QueryRowContext(ctx, query, email).Scan(&r.Email, &r.CodeHash, &r.ExpiresAt, &r.Attempts, &verified)
	if err != nil {
		return nil, notFoundIfNoRows(err, "No pending password reset")
	}
	if verified.Valid {
		r.VerifiedAt = &verified.Time
	}
	return &r, nil
}

func (s *SQLiteStore) ConsumeResetAttempt(ctx context.Context, email string, limit int) (int, error) {
	query := `UPDATE password_resets SET attempts = attempts + 1
			  WHERE email = ? AND attempts < ?
			  RETURNING attempts`
	var used int
	if err := s.db.QueryRowContext(ctx, query, email, limit).Scan(&used); err != nil {
		return 0, notFoundIfNoRows(err, "No reset attempts left")
	}
	return used, nil
}

func (s *SQLiteStore) RefundResetAttempt(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE password_resets SET attempts = MAX(attempts - 1, 0) WHERE email = ?`, email)
	if err != nil {
		return err
	}
	return requireAffected(res, "No pending password reset")
}

func (s *SQLiteStore) MarkResetVerified(ctx context.Context, email string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE password_resets SET verified_at = ? WHERE email = ?`, at.UTC(), email)
	if err != nil {
		return err
	}
	return requireAffected(res, "No pending password reset")
}

func (s *SQLiteStore) DeletePasswordReset(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE email = ?`, email)
	return err
}

func (s *SQLiteStore) DeleteExpiredResets(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM password_resets WHERE expires_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
