package web

import (
	"net/http"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
	"github.com/vitos/cheeseball/internal/usecase"
)

type watchlistResponse struct {
	ID         int64     `json:"id"`
	CoinID     string    `json:"coin_id"`
	CoinSymbol string    `json:"coin_symbol"`
	CoinName   string    `json:"coin_name"`
	CreatedAt  time.Time `json:"created_at"`
}

type portfolioResponse struct {
	ID               int64     `json:"id"`
	CoinID           string    `json:"coin_id"`
	Amount           float64   `json:"amount"`
	PurchasePrice    float64   `json:"purchase_price"`
	PurchaseCurrency string    `json:"purchase_currency"`
	PurchaseDate     time.Time `json:"purchase_date"`
	Notes            *string   `json:"notes"`
}

type alertResponse struct {
	ID          int64      `json:"id"`
	CoinID      string     `json:"coin_id"`
	TargetPrice float64    `json:"target_price"`
	Currency    string     `json:"currency"`
	IsAbove     bool       `json:"is_above"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	TriggeredAt *time.Time `json:"triggered_at"`
}

func toWatchlistResponse(w *domain.WatchlistItem) watchlistResponse {
	return watchlistResponse{ID: w.ID, CoinID: w.CoinID, CoinSymbol: w.CoinSymbol, CoinName: w.CoinName, CreatedAt: w.CreatedAt}
}

func toPortfolioResponse(p *domain.PortfolioItem) portfolioResponse {
	return portfolioResponse{
		ID:               p.ID,
		CoinID:           p.CoinID,
		Amount:           p.Amount,
		PurchasePrice:    p.PurchasePrice,
		PurchaseCurrency: p.PurchaseCurrency,
		PurchaseDate:     p.PurchaseDate,
		Notes:            p.Notes,
	}
}

func toAlertResponse(a *domain.PriceAlert) alertResponse {
	return alertResponse{
		ID:          a.ID,
		CoinID:      a.CoinID,
		TargetPrice: a.TargetPrice,
		Currency:    a.Currency,
		IsAbove:     a.IsAbove,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		TriggeredAt: a.TriggeredAt,
	}
}

// Watchlist

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := s.services.UserData.Watchlist(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]watchlistResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toWatchlistResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.services.UserData.AddToWatchlist(r.Context(), identityFrom(r.Context()), usecase.WatchlistInput{
		CoinID:     in.str("coin_id"),
		CoinSymbol: in.str("coin_symbol"),
		CoinName:   in.str("coin_name"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Added to watchlist",
		"watchlist_item": toWatchlistResponse(item),
	})
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	err := s.services.UserData.RemoveFromWatchlist(r.Context(), identityFrom(r.Context()), r.PathValue("coin_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Removed from watchlist"})
}

// Portfolio

func (s *Server) handleListPortfolio(w http.ResponseWriter, r *http.Request) {
	items, err := s.services.UserData.Portfolio(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]portfolioResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toPortfolioResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPortfolio(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := in.float("amount")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := in.float("purchase_price")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	item, err := s.services.UserData.AddToPortfolio(r.Context(), identityFrom(r.Context()), usecase.PortfolioInput{
		CoinID:           in.str("coin_id"),
		Amount:           amount,
		PurchasePrice:    price,
		PurchaseCurrency: in.str("purchase_currency"),
		Notes:            in.optional("notes"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Added to portfolio",
		"portfolio_item": toPortfolioResponse(item),
	})
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.UserData.RemoveFromPortfolio(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Removed from portfolio"})
}

// Alerts

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.services.UserData.Alerts(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := in.float("target_price")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	isAbove, err := in.boolean("is_above", true)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	alert, err := s.services.UserData.CreateAlert(r.Context(), identityFrom(r.Context()), usecase.AlertInput{
		CoinID:      in.str("coin_id"),
		TargetPrice: target,
		IsAbove:     isAbove,
		Currency:    in.str("currency"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Price alert created",
		"alert":   toAlertResponse(alert),
	})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.UserData.DeleteAlert(r.Context(), identityFrom(r.Context()), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Price alert deleted"})
}
