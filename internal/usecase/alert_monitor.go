package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
)

const EventAlertTriggered = "alert_triggered"

// AlertEvent is pushed to the owner of a triggered alert.
type AlertEvent struct {
	Type        string    `json:"type"`
	AlertID     int64     `json:"alert_id"`
	CoinID      string    `json:"coin_id"`
	Currency    string    `json:"currency"`
	TargetPrice float64   `json:"target_price"`
	IsAbove     bool      `json:"is_above"`
	Price       float64   `json:"price"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type AlertNotifier interface {
	NotifyAlert(userID int64, event AlertEvent)
}

type AlertMetrics interface {
	RecordAlertTriggered()
}

// AlertMonitor evaluates active price alerts against current prices.
type AlertMonitor struct {
	alerts   domain.AlertRepository
	market   *MarketService
	notifier AlertNotifier
	metrics  AlertMetrics
	logger   *zap.Logger
	timeout  time.Duration
	timeNow  func() time.Time // For testing
}

func NewAlertMonitor(alerts domain.AlertRepository, market *MarketService, notifier AlertNotifier, metrics AlertMetrics, logger *zap.Logger) *AlertMonitor {
	return &AlertMonitor{
		alerts:   alerts,
		market:   market,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With(zap.String("component", "alert_monitor")),
		timeout:  20 * time.Second,
		timeNow:  time.Now,
	}
}

func (m *AlertMonitor) Name() string { return "alert_monitor" }

func (m *AlertMonitor) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	triggered, err := m.CheckAlerts(ctx)
	if err != nil {
		return err
	}
	if triggered > 0 {
		m.logger.Info("Alerts triggered", zap.Int("count", triggered))
	}
	return nil
}

// CheckAlerts fetches one simple_price batch per currency and fires every
// alert whose condition holds. It returns the number triggered. Upstream
// failures skip that currency only.
func (m *AlertMonitor) CheckAlerts(ctx context.Context) (int, error) {
	active, err := m.alerts.ListActiveAlerts(ctx)
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, nil
	}

	byCurrency := make(map[string][]*domain.PriceAlert)
	for _, a := range active {
		cur := strings.ToLower(a.Currency)
		byCurrency[cur] = append(byCurrency[cur], a)
	}
	currencies := make([]string, 0, len(byCurrency))
	for cur := range byCurrency {
		currencies = append(currencies, cur)
	}
	sort.Strings(currencies)

	triggered := 0
	for _, cur := range currencies {
		alerts := byCurrency[cur]
		prices, err := m.fetchPrices(ctx, cur, alerts)
		if err != nil {
			m.logger.Warn("Price check failed", zap.String("currency", cur), zap.Error(err))
			continue
		}

		for _, a := range alerts {
			price, ok := prices[strings.ToLower(a.CoinID)][cur]
			if !ok || price == nil || !a.Crossed(*price) {
				continue
			}
			fired, err := m.trigger(ctx, a, *price)
			if err != nil {
				m.logger.Error("Failed to mark alert triggered", zap.Int64("alert_id", a.ID), zap.Error(err))
				continue
			}
			if fired {
				triggered++
			}
		}
	}
	return triggered, nil
}

func (m *AlertMonitor) fetchPrices(ctx context.Context, currency string, alerts []*domain.PriceAlert) (map[string]map[string]*float64, error) {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(alerts))
	// Upstream keys results by lowercase id.
	for _, a := range alerts {
		id := strings.ToLower(a.CoinID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	payload, err := m.market.Execute(ctx, "simple_price", ParamsFromMap(map[string]string{
		"ids":           strings.Join(ids, ","),
		"vs_currencies": currency,
	}))
	if err != nil {
		return nil, err
	}

	var prices map[string]map[string]*float64
	if err := json.Unmarshal(payload, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (m *AlertMonitor) trigger(ctx context.Context, a *domain.PriceAlert, price float64) (bool, error) {
	now := m.timeNow().UTC()
	err := m.alerts.MarkAlertTriggered(ctx, a.ID, now)
	if errors.Is(err, domain.ErrNotFound) {
		// Deleted or already fired since it was listed.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.logger.Info("Alert triggered",
		zap.Int64("alert_id", a.ID),
		zap.Int64("user_id", a.UserID),
		zap.String("coin_id", a.CoinID),
		zap.Float64("price", price),
		zap.Float64("target", a.TargetPrice))

	if m.metrics != nil {
		m.metrics.RecordAlertTriggered()
	}
	if m.notifier != nil {
		m.notifier.NotifyAlert(a.UserID, AlertEvent{
			Type:        EventAlertTriggered,
			AlertID:     a.ID,
			CoinID:      a.CoinID,
			Currency:    a.Currency,
			TargetPrice: a.TargetPrice,
			IsAbove:     a.IsAbove,
			Price:       price,
			TriggeredAt: now,
		})
	}
	return true, nil
}
