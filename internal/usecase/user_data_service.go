package usecase

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
)

// UserDataService manages watchlists, portfolios and alerts. Every call is
// scoped to the caller's user id.
type UserDataService struct {
	watchlists domain.WatchlistRepository
	portfolios domain.PortfolioRepository
	alerts     domain.AlertRepository
	timeNow    func() time.Time // For testing
}

func NewUserDataService(watchlists domain.WatchlistRepository, portfolios domain.PortfolioRepository, alerts domain.AlertRepository) *UserDataService {
	return &UserDataService{
		watchlists: watchlists,
		portfolios: portfolios,
		alerts:     alerts,
		timeNow:    time.Now,
	}
}

type WatchlistInput struct {
	CoinID     string
	CoinSymbol string
	CoinName   string
}

type PortfolioInput struct {
	CoinID           string
	Amount           float64
	PurchasePrice    float64
	PurchaseCurrency string
	Notes            *string
}

type AlertInput struct {
	CoinID      string
	TargetPrice float64
	IsAbove     bool
	Currency    string
}

func requireCoinID(coinID string) error {
	if strings.TrimSpace(coinID) == "" {
		return domain.NewError(domain.ErrInvalidArgument, "coin_id is required")
	}
	return nil
}

func requireFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.NewError(domain.ErrInvalidArgument, name+" must be a finite number")
	}
	return nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return DefaultPreferredCurrency
	}
	return strings.ToLower(c)
}

func (s *UserDataService) Watchlist(ctx context.Context, id *domain.Identity) ([]*domain.WatchlistItem, error) {
	return s.watchlists.ListWatchlist(ctx, id.UserID)
}

func (s *UserDataService) AddToWatchlist(ctx context.Context, id *domain.Identity, in WatchlistInput) (*domain.WatchlistItem, error) {
	if err := requireCoinID(in.CoinID); err != nil {
		return nil, err
	}
	item := &domain.WatchlistItem{
		UserID:     id.UserID,
		CoinID:     in.CoinID,
		CoinSymbol: in.CoinSymbol,
		CoinName:   in.CoinName,
		CreatedAt:  s.timeNow().UTC(),
	}
	if err := s.watchlists.AddWatchlistItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *UserDataService) RemoveFromWatchlist(ctx context.Context, id *domain.Identity, coinID string) error {
	return s.watchlists.DeleteWatchlistItem(ctx, id.UserID, coinID)
}

func (s *UserDataService) Portfolio(ctx context.Context, id *domain.Identity) ([]*domain.PortfolioItem, error) {
	return s.portfolios.ListPortfolio(ctx, id.UserID)
}

func (s *UserDataService) AddToPortfolio(ctx context.Context, id *domain.Identity, in PortfolioInput) (*domain.PortfolioItem, error) {
	if err := requireCoinID(in.CoinID); err != nil {
		return nil, err
	}
	if err := requireFinite("amount", in.Amount); err != nil {
		return nil, err
	}
	if err := requireFinite("purchase_price", in.PurchasePrice); err != nil {
		return nil, err
	}
	item := &domain.PortfolioItem{
		UserID:           id.UserID,
		CoinID:           in.CoinID,
		Amount:           in.Amount,
		PurchasePrice:    in.PurchasePrice,
		PurchaseCurrency: currencyOrDefault(in.PurchaseCurrency),
		PurchaseDate:     s.timeNow().UTC(),
		Notes:            in.Notes,
	}
	if err := s.portfolios.AddPortfolioItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *UserDataService) RemoveFromPortfolio(ctx context.Context, id *domain.Identity, itemID int64) error {
	return s.portfolios.DeletePortfolioItem(ctx, id.UserID, itemID)
}

func (s *UserDataService) Alerts(ctx context.Context, id *domain.Identity) ([]*domain.PriceAlert, error) {
	return s.alerts.ListAlerts(ctx, id.UserID)
}

func (s *UserDataService) CreateAlert(ctx context.Context, id *domain.Identity, in AlertInput) (*domain.PriceAlert, error) {
	if err := requireCoinID(in.CoinID); err != nil {
		return nil, err
	}
	if err := requireFinite("target_price", in.TargetPrice); err != nil {
		return nil, err
	}
	alert := &domain.PriceAlert{
		UserID:      id.UserID,
		CoinID:      strings.ToLower(strings.TrimSpace(in.CoinID)),
		TargetPrice: in.TargetPrice,
		Currency:    currencyOrDefault(in.Currency),
		IsAbove:     in.IsAbove,
		IsActive:    true,
		CreatedAt:   s.timeNow().UTC(),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *UserDataService) DeleteAlert(ctx context.Context, id *domain.Identity, alertID int64) error {
	return s.alerts.DeleteAlert(ctx, id.UserID, alertID)
}
