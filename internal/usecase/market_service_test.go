package usecase

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/cheeseball/internal/domain"
	"go.uber.org/zap"
)

type upstreamCall struct {
	Operation string
	Path      string
	Query     url.Values
}

// MockSource records every upstream request.
type MockSource struct {
	mu    sync.Mutex
	calls []upstreamCall
	body  []byte
	err   error
	delay time.Duration
}

func (m *MockSource) Get(ctx context.Context, operation, path string, query url.Values) ([]byte, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, upstreamCall{Operation: operation, Path: path, Query: query})
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

func (m *MockSource) Calls() []upstreamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]upstreamCall(nil), m.calls...)
}

// MockCache is a TTL map driven by an injected clock.
type MockCache struct {
	mu      sync.Mutex
	entries map[string]mockEntry
	ttl     time.Duration
	now     func() time.Time
}

type mockEntry struct {
	payload  []byte
	storedAt time.Time
}

func NewMockCache(ttl time.Duration, now func() time.Time) *MockCache {
	return &MockCache{entries: map[string]mockEntry{}, ttl: ttl, now: now}
}

func (c *MockCache) Lookup(ctx context.Context, key domain.CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.payload, true
}

func (c *MockCache) Store(ctx context.Context, key domain.CacheKey, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = mockEntry{payload: payload, storedAt: c.now()}
}

func (c *MockCache) Close() error { return nil }

type MockProxyMetrics struct {
	hits, misses, upstreamErrors atomic.Int32
}

func (m *MockProxyMetrics) RecordCacheResult(operation string, hit bool) {
	if hit {
		m.hits.Add(1)
	} else {
		m.misses.Add(1)
	}
}

func (m *MockProxyMetrics) RecordUpstream(operation string, duration time.Duration, err error) {
	if err != nil {
		m.upstreamErrors.Add(1)
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMarketService(source *MockSource) (*MarketService, *testClock, *MockProxyMetrics) {
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	metrics := &MockProxyMetrics{}
	service := NewMarketService(source, NewMockCache(60*time.Second, clock.Now), metrics, zap.NewNop())
	service.timeNow = clock.Now
	return service, clock, metrics
}

func TestMarketService_CachesWithinTTL(t *testing.T) {
	source := &MockSource{body: []byte(`{"bitcoin":{"usd":64000.5}}`)}
	service, clock, metrics := newTestMarketService(source)
	ctx := context.Background()
	params := ParamsFromMap(map[string]string{"ids": "bitcoin", "vs_currencies": "usd"})

	first, err := service.Execute(ctx, "simple_price", params)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	second, err := service.Execute(ctx, "simple_price", params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, source.Calls(), 1)
	assert.Equal(t, int32(1), metrics.hits.Load())
	assert.Equal(t, int32(1), metrics.misses.Load())
}

func TestMarketService_RefetchesAfterTTL(t *testing.T) {
	source := &MockSource{body: []byte(`{"v":1}`)}
	service, clock, _ := newTestMarketService(source)
	ctx := context.Background()
	params := ParamsFromMap(nil)

	_, err := service.Execute(ctx, "global", params)
	require.NoError(t, err)

	clock.Advance(60 * time.Second)
	source.body = []byte(`{"v":2}`)
	got, err := service.Execute(ctx, "global", params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))

	got, err = service.Execute(ctx, "global", params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))
	assert.Len(t, source.Calls(), 2)
}

func TestMarketService_DistinctParamsDistinctEntries(t *testing.T) {
	source := &MockSource{body: []byte(`[]`)}
	service, _, _ := newTestMarketService(source)
	ctx := context.Background()

	for _, days := range []string{"7", "30"} {
		_, err := service.Execute(ctx, "market_chart", ParamsFromMap(map[string]string{"coin_id": "bitcoin", "days": days}))
		require.NoError(t, err)
	}
	_, err := service.Execute(ctx, "market_chart", ParamsFromMap(map[string]string{"coin_id": "ethereum", "days": "7"}))
	require.NoError(t, err)

	assert.Len(t, source.Calls(), 3)
}

func TestMarketService_EquivalentInputsShareEntry(t *testing.T) {
	source := &MockSource{body: []byte(`[]`)}
	service, _, _ := newTestMarketService(source)
	ctx := context.Background()

	_, err := service.Execute(ctx, "coin_ohlc", ParamsFromMap(map[string]string{"coin_id": "bitcoin", "days": "07"}))
	require.NoError(t, err)
	// Defaults bind like explicit values.
	_, err = service.Execute(ctx, "coin_ohlc", ParamsFromMap(map[string]string{"coin_id": "bitcoin", "vs_currency": "usd"}))
	require.NoError(t, err)

	calls := source.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/coins/bitcoin/ohlc", calls[0].Path)
	assert.Equal(t, "7", calls[0].Query.Get("days"))
}

func TestMarketService_RangeDefaultsResolvedAtRequestTime(t *testing.T) {
	source := &MockSource{body: []byte(`{"prices":[]}`)}
	service, clock, _ := newTestMarketService(source)
	ctx := context.Background()
	params := ParamsFromMap(map[string]string{"coin_id": "bitcoin", "from_timestamp": "0"})

	_, err := service.Execute(ctx, "market_chart_range", params)
	require.NoError(t, err)

	// A later request resolves a different window and so a different key.
	clock.Advance(time.Second)
	_, err = service.Execute(ctx, "market_chart_range", params)
	require.NoError(t, err)

	calls := source.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "/coins/bitcoin/market_chart/range", calls[0].Path)
	assert.Equal(t, "1706702400", calls[0].Query.Get("from"))
	assert.Equal(t, "1709294400", calls[0].Query.Get("to"))
	assert.Equal(t, "1709294401", calls[1].Query.Get("to"))
	assert.Empty(t, calls[0].Query.Get("from_timestamp"))
}

func TestMarketService_ExplicitRangeIsForwarded(t *testing.T) {
	source := &MockSource{body: []byte(`{}`)}
	service, _, _ := newTestMarketService(source)

	_, err := service.Execute(context.Background(), "market_chart_range", ParamsFromMap(map[string]string{
		"coin_id": "ethereum", "vs_currency": "eur", "from_timestamp": "1700000000", "to_timestamp": "1700086400",
	}))
	require.NoError(t, err)

	q := source.Calls()[0].Query
	assert.Equal(t, "1700000000", q.Get("from"))
	assert.Equal(t, "1700086400", q.Get("to"))
	assert.Equal(t, "eur", q.Get("vs_currency"))
}

func TestMarketService_EmptyOptionalNotForwarded(t *testing.T) {
	source := &MockSource{body: []byte(`[]`)}
	service, _, _ := newTestMarketService(source)

	_, err := service.Execute(context.Background(), "coins_markets", ParamsFromMap(map[string]string{"ids": ""}))
	require.NoError(t, err)

	q := source.Calls()[0].Query
	assert.False(t, q.Has("ids"))
	assert.False(t, q.Has("category"))
	assert.Equal(t, "market_cap_desc", q.Get("order"))
	assert.Equal(t, "100", q.Get("per_page"))
	assert.Equal(t, "false", q.Get("sparkline"))
}

func TestMarketService_PathParamsEscaped(t *testing.T) {
	source := &MockSource{body: []byte(`{}`)}
	service, _, _ := newTestMarketService(source)

	_, err := service.Execute(context.Background(), "token_market_chart", ParamsFromMap(map[string]string{
		"platform_id": "ethereum", "contract_address": "0xabc/def",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/coins/ethereum/contract/0xabc%2Fdef/market_chart", source.Calls()[0].Path)
}

func TestMarketService_InvalidArguments(t *testing.T) {
	source := &MockSource{body: []byte(`{}`)}
	service, _, _ := newTestMarketService(source)
	ctx := context.Background()

	_, err := service.Execute(ctx, "simple_price", ParamsFromMap(map[string]string{"ids": "bitcoin"}))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = service.Execute(ctx, "market_chart", ParamsFromMap(map[string]string{"coin_id": "bitcoin", "days": "week"}))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = service.Execute(ctx, "coins_list", ParamsFromMap(map[string]string{"include_platform": "maybe"}))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Empty(t, source.Calls())
}

func TestMarketService_UpstreamErrorsNotCached(t *testing.T) {
	source := &MockSource{err: &domain.UpstreamError{Operation: "trending", Status: 429, Message: "rate limited"}}
	service, _, metrics := newTestMarketService(source)
	ctx := context.Background()

	_, err := service.Execute(ctx, "trending", ParamsFromMap(nil))
	require.Error(t, err)
	var upErr *domain.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 429, upErr.Status)

	source.err = nil
	source.body = []byte(`{"coins":[]}`)
	got, err := service.Execute(ctx, "trending", ParamsFromMap(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"coins":[]}`, string(got))
	assert.Len(t, source.Calls(), 2)
	assert.Equal(t, int32(1), metrics.upstreamErrors.Load())
}

func TestMarketService_PlainSourceErrorBecomesUpstreamUnavailable(t *testing.T) {
	source := &MockSource{err: errors.New("connection refused")}
	service, _, _ := newTestMarketService(source)

	_, err := service.Execute(context.Background(), "global", ParamsFromMap(nil))
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestMarketService_UnknownOperation(t *testing.T) {
	service, _, _ := newTestMarketService(&MockSource{})
	_, err := service.Execute(context.Background(), "nope", ParamsFromMap(nil))
	assert.Error(t, err)
}

func TestMarketService_ConcurrentMissesCollapse(t *testing.T) {
	source := &MockSource{body: []byte(`{}`), delay: 50 * time.Millisecond}
	service, _, _ := newTestMarketService(source)
	params := ParamsFromMap(map[string]string{"coin_id": "bitcoin"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Execute(context.Background(), "coin_tickers", params)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, source.Calls(), 1)
}

func TestMarketService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	source := &MockSource{body: []byte(`{"tickers":[]}`), delay: 100 * time.Millisecond}
	service, _, _ := newTestMarketService(source)
	params := ParamsFromMap(map[string]string{"coin_id": "bitcoin"})

	leaderCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := service.Execute(leaderCtx, "coin_tickers", params)
		leaderErr <- err
	}()

	// Join the call the first request started.
	time.Sleep(5 * time.Millisecond)
	payload, err := service.Execute(context.Background(), "coin_tickers", params)
	require.NoError(t, err)
	assert.Equal(t, `{"tickers":[]}`, string(payload))

	err = <-leaderErr
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, source.Calls(), 1)

	// The shared result was cached for later callers.
	_, err = service.Execute(context.Background(), "coin_tickers", params)
	require.NoError(t, err)
	assert.Len(t, source.Calls(), 1)
}
