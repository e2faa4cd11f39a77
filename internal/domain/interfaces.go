package domain

import (
	"context"
	"net/url"
	"time"
)

// MarketDataSource issues read-only GET requests to the market-data API and
// returns the raw JSON body.
type MarketDataSource interface {
	Get(ctx context.Context, operation, path string, query url.Values) ([]byte, error)
}

// UserRepository defines storage operations for accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error
	SetUserAdmin(ctx context.Context, id int64, admin bool) error
	UpdatePassword(ctx context.Context, id int64, hashedPassword string) error
	Statistics(ctx context.Context) (*Statistics, error)
}

// WatchlistRepository defines storage operations for watchlists.
type WatchlistRepository interface {
	AddWatchlistItem(ctx context.Context, item *WatchlistItem) error
	ListWatchlist(ctx context.Context, userID int64) ([]*WatchlistItem, error)
	DeleteWatchlistItem(ctx context.Context, userID int64, coinID string) error
}

// PortfolioRepository defines storage operations for portfolios.
type PortfolioRepository interface {
	AddPortfolioItem(ctx context.Context, item *PortfolioItem) error
	ListPortfolio(ctx context.Context, userID int64) ([]*PortfolioItem, error)
	DeletePortfolioItem(ctx context.Context, userID, id int64) error
}

// AlertRepository defines storage operations for price alerts.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *PriceAlert) error
	ListAlerts(ctx context.Context, userID int64) ([]*PriceAlert, error)
	ListActiveAlerts(ctx context.Context) ([]*PriceAlert, error)
	MarkAlertTriggered(ctx context.Context, id int64, at time.Time) error
	DeleteAlert(ctx context.Context, userID, id int64) error
}

// PasswordResetRepository stores pending one-time codes.
type PasswordResetRepository interface {
	SavePasswordReset(ctx context.Context, reset *PasswordReset) error
	GetPasswordReset(ctx context.Context, email string) (*PasswordReset, error)
	// ConsumeResetAttempt atomically takes one attempt while fewer than limit
	// are used and returns the new count. ErrNotFound means no record or no
	// attempts left.
	ConsumeResetAttempt(ctx context.Context, email string, limit int) (int, error)
	RefundResetAttempt(ctx context.Context, email string) error
	MarkResetVerified(ctx context.Context, email string, at time.Time) error
	DeletePasswordReset(ctx context.Context, email string) error
	DeleteExpiredResets(ctx context.Context, before time.Time) (int64, error)
}

// Mailer delivers plain-text messages.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
