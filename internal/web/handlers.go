package web

import (
	"net/http"

	"github.com/vitos/cheeseball/internal/usecase"
)

// marketRoutes maps local route patterns to proxied operations.
var marketRoutes = []struct {
	pattern   string
	operation string
}{
	{"/coins/list", "coins_list"},
	{"/simple/supported_vs_currencies", "supported_vs_currencies"},
	{"/search/trending", "trending"},
	{"/coins/categories/list", "categories_list"},
	{"/simple/price", "simple_price"},
	{"/simple/token_price/{platform_id}", "token_price"},
	{"/coins/markets", "coins_markets"},
	{"/coins/{coin_id}", "coin_detail"},
	{"/coins/{coin_id}/tickers", "coin_tickers"},
	{"/coins/{coin_id}/market_chart", "market_chart"},
	{"/coins/{coin_id}/market_chart/range", "market_chart_range"},
	{"/coins/{coin_id}/ohlc", "coin_ohlc"},
	{"/coins/{platform_id}/contract/{contract_address}/market_chart", "token_market_chart"},
	{"/onchain/simple/token_price/{platform_id}", "onchain_token_price"},
	{"/global", "global"},
}

// handleMarket serves one proxied operation. Path values take precedence
// over query values of the same name.
func (s *Server) handleMarket(operation string) http.HandlerFunc {
	op, ok := usecase.LookupOperation(operation)
	if !ok {
		panic("web: unknown market operation " + operation)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		params := func(name string) (string, bool) {
			for _, p := range op.Params {
				if p.Name == name && p.InPath {
					return r.PathValue(name), true
				}
			}
			if !query.Has(name) {
				return "", false
			}
			return query.Get(name), true
		}

		payload, err := s.services.Market.Execute(r.Context(), operation, params)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeRawJSON(w, payload)
	}
}

// Auth

type userResponse struct {
	ID                int64  `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	PreferredCurrency string `json:"preferred_currency"`
	IsAdmin           bool   `json:"is_admin"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.services.Auth.Register(r.Context(), usecase.RegisterInput{
		Username:          in.str("username"),
		Email:             in.str("email"),
		Password:          in.str("password"),
		PreferredCurrency: in.str("preferred_currency"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User created successfully",
		"user_id": user.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.services.Auth.Login(r.Context(), in.str("username"), in.str("password"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": res.AccessToken,
		"token_type":   res.TokenType,
		"user": userResponse{
			ID:                res.User.ID,
			Username:          res.User.Username,
			Email:             res.User.Email,
			PreferredCurrency: res.User.PreferredCurrency,
			IsAdmin:           res.User.IsAdmin,
		},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id.UserID,
		"username": id.Username,
		"is_admin": id.IsAdmin,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.Resets.RequestReset(r.Context(), in.str("email")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.services.Resets.VerifyOTP(r.Context(), in.str("email"), in.str("otp")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP verified"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	in, err := readInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.services.Resets.ResetPassword(r.Context(), in.str("email"), in.str("otp"), in.str("new_password"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}
