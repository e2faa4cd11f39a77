package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProxyMetrics records cache and upstream outcomes.
type ProxyMetrics interface {
	RecordCacheResult(operation string, hit bool)
	RecordUpstream(operation string, duration time.Duration, err error)
}

type noopProxyMetrics struct{}

func (noopProxyMetrics) RecordCacheResult(string, bool) {}

func (noopProxyMetrics) RecordUpstream(string, time.Duration, error) {}

// MarketService answers proxied market-data operations from the response
// cache, falling back to a single upstream GET on a miss.
type MarketService struct {
	source  domain.MarketDataSource
	cache   domain.ResponseCache
	metrics ProxyMetrics
	logger  *zap.Logger
	group   singleflight.Group
	timeNow func() time.Time // For testing

	// fetchTimeout caps a shared upstream call, which outlives the caller
	// that started it.
	fetchTimeout time.Duration
}

const defaultFetchTimeout = 30 * time.Second

func NewMarketService(source domain.MarketDataSource, cache domain.ResponseCache, metrics ProxyMetrics, logger *zap.Logger) *MarketService {
	if metrics == nil {
		metrics = noopProxyMetrics{}
	}
	return &MarketService{
		source:  source,
		cache:   cache,
		metrics: metrics,
		logger:  logger.With(zap.String("component", "market_service")),
		timeNow: time.Now,

		fetchTimeout: defaultFetchTimeout,
	}
}

// Execute binds params for the named operation and returns the upstream
// JSON payload, unchanged.
func (s *MarketService) Execute(ctx context.Context, operation string, params ParamSource) ([]byte, error) {
	op, ok := LookupOperation(operation)
	if !ok {
		return nil, fmt.Errorf("unknown market operation %q", operation)
	}

	values, err := op.Bind(params, s.timeNow())
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, op, values)
}

func (s *MarketService) fetch(ctx context.Context, op *Operation, values []string) ([]byte, error) {
	key := domain.CacheKey{Operation: op.Name, Params: values}

	if payload, ok := s.cache.Lookup(ctx, key); ok {
		s.metrics.RecordCacheResult(op.Name, true)
		return payload, nil
	}
	s.metrics.RecordCacheResult(op.Name, false)

	// Concurrent misses for one key share a single upstream call. The call
	// runs detached from any one caller's context; each caller only stops
	// waiting when its own context ends.
	ch := s.group.DoChan(key.String(), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		path, query := op.UpstreamRequest(values)

		start := time.Now()
		body, err := s.source.Get(fetchCtx, op.Name, path, query)
		s.metrics.RecordUpstream(op.Name, time.Since(start), err)
		if err != nil {
			if !errors.Is(err, domain.ErrUpstreamUnavailable) {
				err = &domain.UpstreamError{Operation: op.Name, Err: err}
			}
			s.logger.Warn("Upstream request failed", zap.String("operation", op.Name), zap.String("path", path), zap.Error(err))
			return nil, err
		}

		s.cache.Store(fetchCtx, key, body)
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, &domain.UpstreamError{Operation: op.Name, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}
