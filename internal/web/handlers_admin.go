package web

import (
	"fmt"
	"net/http"
	"time"
)

type adminUserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.services.Admin.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]adminUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, adminUserResponse{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			IsActive:  u.IsActive,
			IsAdmin:   u.IsAdmin,
			CreatedAt: u.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	report, err := s.services.Admin.Statistics(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":      report.TotalUsers,
		"total_watchlists": report.TotalWatchlists,
		"total_portfolios": report.TotalPortfolios,
		"total_alerts":     report.TotalAlerts,
		"server_time":      report.ServerTime,
	})
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	verb := "deactivated"
	if active {
		verb = "activated"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathID(r, "user_id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		user, err := s.services.Admin.SetActive(r.Context(), identityFrom(r.Context()), userID, active)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("User %s %s", user.Username, verb)})
	}
}
