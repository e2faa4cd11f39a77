package domain

import "time"

// User is a registered account.
type User struct {
	ID                int64
	Username          string
	Email             string
	HashedPassword    string
	PreferredCurrency string
	IsActive          bool
	IsAdmin           bool
	CreatedAt         time.Time
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID   int64
	Username string
	IsAdmin  bool
}

// PasswordReset holds a pending one-time code for an e-mail address.
type PasswordReset struct {
	Email      string
	CodeHash   string
	ExpiresAt  time.Time
	Attempts   int
	VerifiedAt *time.Time
}

// Statistics is the admin overview of stored records.
type Statistics struct {
	TotalUsers      int
	TotalWatchlists int
	TotalPortfolios int
	TotalAlerts     int
}
