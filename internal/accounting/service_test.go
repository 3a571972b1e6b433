package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	salesCalls      int
	taxCalls        int
	codCalls        int
	collectionCalls int
	sales           SalesSummary
	tax             TaxSummary
	cod             CODExposure
	profit          ProfitSummary
	collection      CollectionSummary
	trend           []TrendPoint
}

func (m *mockRepo) SalesSummary(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	m.salesCalls++
	s := m.sales
	s.From, s.To = from, to
	return s, nil
}

func (m *mockRepo) TaxSummary(ctx context.Context, from, to time.Time) (TaxSummary, error) {
	m.taxCalls++
	s := m.tax
	s.From, s.To = from, to
	return s, nil
}

func (m *mockRepo) CODExposure(ctx context.Context) (CODExposure, error) {
	m.codCalls++
	return m.cod, nil
}

func (m *mockRepo) ProfitSummary(ctx context.Context, from, to time.Time) (ProfitSummary, error) {
	p := m.profit
	p.From, p.To = from, to
	return p, nil
}

func (m *mockRepo) CollectionSummary(ctx context.Context, from, to time.Time) (CollectionSummary, error) {
	m.collectionCalls++
	c := m.collection
	c.From, c.To = from, to
	return c, nil
}

func (m *mockRepo) DailyTrend(ctx context.Context, from, to time.Time) ([]TrendPoint, error) {
	return m.trend, nil
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

var (
	rangeFrom = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rangeTo   = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
)

func TestSalesServedFromCacheOnRepeat(t *testing.T) {
	repo := &mockRepo{sales: SalesSummary{
		OnlineOrders: 3, OnlineRevenue: 4500,
		CODOrders: 2, CODRevenue: 2360,
		TotalOrders: 5, TotalRevenue: 6860,
	}}
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	first, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 6860.0, first.TotalRevenue)
	assert.Equal(t, 1, repo.salesCalls)

	second, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, first.TotalRevenue, second.TotalRevenue)
	assert.Equal(t, 1, repo.salesCalls, "second read must hit the cache")
}

func TestInvalidateBumpsEveryReportKey(t *testing.T) {
	repo := &mockRepo{sales: SalesSummary{TotalRevenue: 100}}
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	_, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	_, err = svc.Tax(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	_, err = svc.Tax(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.salesCalls)
	assert.Equal(t, 2, repo.taxCalls)
}

func TestDifferentRangesGetDifferentKeys(t *testing.T) {
	repo := &mockRepo{}
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	_, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	_, err = svc.Sales(ctx, rangeFrom.AddDate(0, -1, 0), rangeFrom)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.salesCalls)
}

func TestNilCacheDegradesToPassThrough(t *testing.T) {
	repo := &mockRepo{sales: SalesSummary{TotalRevenue: 42}}
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		summary, err := svc.Sales(ctx, rangeFrom, rangeTo)
		require.NoError(t, err)
		assert.Equal(t, 42.0, summary.TotalRevenue)
	}
	assert.Equal(t, 2, repo.salesCalls)
	require.NoError(t, svc.Invalidate(ctx))
}

func TestCODExposureIsNeverCached(t *testing.T) {
	repo := &mockRepo{cod: CODExposure{
		Rows:        []CODExposureRow{{State: "PENDING", Orders: 2, Amount: 900}},
		Outstanding: 900,
	}}
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exposure, err := svc.CODExposure(ctx)
		require.NoError(t, err)
		assert.Equal(t, 900.0, exposure.Outstanding)
	}
	assert.Equal(t, 3, repo.codCalls)
}

func TestReportsRejectInvalidRange(t *testing.T) {
	svc := NewService(&mockRepo{}, nil)
	ctx := context.Background()

	_, err := svc.Sales(ctx, rangeTo, rangeFrom)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.Tax(ctx, rangeFrom, rangeFrom)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.Profit(ctx, rangeTo, rangeFrom)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.Collection(ctx, rangeTo, rangeFrom)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = svc.Trend(ctx, rangeTo, rangeFrom)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestProfitMarginComputedOnGoodsValue(t *testing.T) {
	// ₹1,000 of goods at ₹800 cost: the ₹180 GST and ₹50 shipping the buyer
	// also paid never enter the margin.
	repo := &mockRepo{profit: ProfitSummary{Revenue: 1000, Cost: 800}}
	svc := NewService(repo, nil)

	summary, err := svc.Profit(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 200.0, summary.Profit)
	assert.Equal(t, 20.0, summary.MarginPercent)
}

func TestProfitMarginZeroWithoutRevenue(t *testing.T) {
	repo := &mockRepo{profit: ProfitSummary{Revenue: 0, Cost: 50}}
	svc := NewService(repo, nil)

	summary, err := svc.Profit(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, -50.0, summary.Profit)
	assert.Equal(t, 0.0, summary.MarginPercent)
}

func TestCollectionEfficiencyRatio(t *testing.T) {
	repo := &mockRepo{collection: CollectionSummary{
		RecognisedRevenue: 6000,
		UnsettledCOD:      3000,
		UnpaidOnline:      1000,
		CancelledOrders:   2,
	}}
	svc := NewService(repo, nil)

	summary, err := svc.Collection(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 60.0, summary.EfficiencyPercent)
	assert.Equal(t, 6000.0, summary.RecognisedRevenue)
	assert.Equal(t, 3000.0, summary.UnsettledCOD)
	assert.Equal(t, 1000.0, summary.UnpaidOnline)
	assert.Equal(t, 2, summary.CancelledOrders)
}

func TestCollectionEfficiencyZeroWhenNothingBooked(t *testing.T) {
	svc := NewService(&mockRepo{}, nil)

	summary, err := svc.Collection(context.Background(), rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 0.0, summary.EfficiencyPercent)
}

func TestCollectionServedFromCacheOnRepeat(t *testing.T) {
	repo := &mockRepo{collection: CollectionSummary{RecognisedRevenue: 500}}
	cache, _ := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	first, err := svc.Collection(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 100.0, first.EfficiencyPercent)

	second, err := svc.Collection(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, first.EfficiencyPercent, second.EfficiencyPercent)
	assert.Equal(t, 1, repo.collectionCalls)
}

func TestCacheSurvivesRedisRestartViaVersionReset(t *testing.T) {
	repo := &mockRepo{sales: SalesSummary{TotalRevenue: 10}}
	cache, mr := newTestCache(t)
	svc := NewService(repo, cache)
	ctx := context.Background()

	_, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)

	mr.FlushAll()

	summary, err := svc.Sales(ctx, rangeFrom, rangeTo)
	require.NoError(t, err)
	assert.Equal(t, 10.0, summary.TotalRevenue)
	assert.Equal(t, 2, repo.salesCalls)
}
