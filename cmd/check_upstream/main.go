package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/vitos/cheeseball/internal/config"
	"github.com/vitos/cheeseball/internal/infrastructure/exchange"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	coin := flag.String("coin", "bitcoin", "coin id to price")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing CoinGecko interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Upstream.BaseURL)
	if cfg.Upstream.APIKey != "" {
		fmt.Printf("API Key: %s... (%s)\n", cfg.Upstream.APIKey[:min(4, len(cfg.Upstream.APIKey))], cfg.Upstream.APIKeyHeader)
	} else {
		fmt.Printf("API Key: none\n")
	}

	client := exchange.NewCoinGeckoClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, cfg.Upstream.APIKeyHeader, cfg.UpstreamTimeout())
	ctx := context.Background()

	failed := false
	if err := client.Ping(ctx); err != nil {
		fmt.Printf("❌ Ping failed: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Ping OK\n")
	}

	body, err := client.Get(ctx, "simple_price", "/simple/price", url.Values{
		"ids":           {*coin},
		"vs_currencies": {"usd"},
	})
	if err != nil {
		fmt.Printf("❌ Failed to get price: %v\n", err)
		failed = true
	} else {
		fmt.Printf("✅ Price (%s): %s\n", *coin, body)
	}

	if failed {
		os.Exit(1)
	}
}
