package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vitos/cheeseball/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "cheeseball.db", "path to the sqlite database")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	stats, err := store.Statistics(ctx)
	if err != nil {
		fmt.Printf("Failed to read statistics: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Users: %d, watchlist items: %d, portfolio items: %d, alerts: %d\n",
		stats.TotalUsers, stats.TotalWatchlists, stats.TotalPortfolios, stats.TotalAlerts)

	users, err := store.ListUsers(ctx)
	if err != nil {
		fmt.Printf("Failed to list users: %v\n", err)
		os.Exit(1)
	}
	for _, u := range users {
		fmt.Printf("- User ID: %d, Username: %s, Email: %s, Active: %t, Admin: %t\n",
			u.ID, u.Username, u.Email, u.IsActive, u.IsAdmin)

		alerts, err := store.ListAlerts(ctx, u.ID)
		if err != nil {
			fmt.Printf("  ❌ Failed to list alerts: %v\n", err)
			continue
		}
		for _, a := range alerts {
			state := "active"
			if !a.IsActive {
				state = "triggered"
			}
			fmt.Printf("  • Alert %d: %s %s %.4f %s (%s)\n", a.ID, a.CoinID, direction(a.IsAbove), a.TargetPrice, a.Currency, state)
		}
	}
}

func direction(above bool) string {
	if above {
		return ">="
	}
	return "<="
}
