package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/vitos/cheeseball/internal/config"
	"github.com/vitos/cheeseball/internal/domain"
	"github.com/vitos/cheeseball/internal/infrastructure/storage"
	"github.com/vitos/cheeseball/internal/usecase"
)

// Creates an administrator account, or promotes an existing user.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	username := flag.String("username", "admin", "admin username")
	email := flag.String("email", "", "admin email (required for a new account)")
	password := flag.String("password", "", "admin password (required for a new account)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	user, err := store.GetUserByUsername(ctx, *username)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		auth := usecase.NewAuthService(store, cfg.Auth.JWTSecret, cfg.TokenTTL())
		user, err = auth.Register(ctx, usecase.RegisterInput{
			Username: *username,
			Email:    *email,
			Password: *password,
		})
		if err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
		fmt.Printf("✅ User %q created (id %d)\n", user.Username, user.ID)
	case err != nil:
		log.Fatalf("Failed to look up user: %v", err)
	}

	if err := store.SetUserAdmin(ctx, user.ID, true); err != nil {
		log.Fatalf("Failed to grant admin: %v", err)
	}
	fmt.Printf("✅ %q is now an administrator\n", user.Username)
}
