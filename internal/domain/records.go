package domain

import "time"

// WatchlistItem is a coin followed by a user. (UserID, CoinID) is unique.
type WatchlistItem struct {
	ID         int64
	UserID     int64
	CoinID     string
	CoinSymbol string
	CoinName   string
	CreatedAt  time.Time
}

// PortfolioItem is a recorded purchase.
type PortfolioItem struct {
	ID               int64
	UserID           int64
	CoinID           string
	Amount           float64
	PurchasePrice    float64
	PurchaseCurrency string
	PurchaseDate     time.Time
	Notes            *string
}

// PriceAlert fires once when the coin price crosses TargetPrice in the
// direction given by IsAbove.
type PriceAlert struct {
	ID          int64
	UserID      int64
	CoinID      string
	TargetPrice float64
	Currency    string
	IsAbove     bool
	IsActive    bool
	CreatedAt   time.Time
	TriggeredAt *time.Time
}

// Crossed reports whether price satisfies the alert condition.
func (a *PriceAlert) Crossed(price float64) bool {
	if a.IsAbove {
		return price >= a.TargetPrice
	}
	return price <= a.TargetPrice
}
