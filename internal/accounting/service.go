package accounting

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRange indicates from is not before to.
var ErrInvalidRange = errors.New("accounting: from must be before to")

// Service serves the back-office reports through the versioned cache. COD
// exposure is served live; it is the report operators refresh while chasing
// couriers and caching it would only confuse them.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService constructs the reporting service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func validateRange(from, to time.Time) error {
	if !from.Before(to) {
		return ErrInvalidRange
	}
	return nil
}

// Sales returns the recognised-revenue summary for [from, to).
func (s *Service) Sales(ctx context.Context, from, to time.Time) (SalesSummary, error) {
	if err := validateRange(from, to); err != nil {
		return SalesSummary{}, err
	}
	var summary SalesSummary
	err := s.cached(ctx, keySales(from, to), &summary, func(ctx context.Context) (interface{}, error) {
		return s.repo.SalesSummary(ctx, from, to)
	})
	return summary, err
}

// Tax returns the GST liability summary for [from, to).
func (s *Service) Tax(ctx context.Context, from, to time.Time) (TaxSummary, error) {
	if err := validateRange(from, to); err != nil {
		return TaxSummary{}, err
	}
	var summary TaxSummary
	err := s.cached(ctx, keyTax(from, to), &summary, func(ctx context.Context) (interface{}, error) {
		return s.repo.TaxSummary(ctx, from, to)
	})
	return summary, err
}

// CODExposure returns the live settlement exposure.
func (s *Service) CODExposure(ctx context.Context) (CODExposure, error) {
	return s.repo.CODExposure(ctx)
}

// Profit returns the recognised goods revenue, cost and margin for
// [from, to). Margin is computed against the goods value so shipping and
// GST pass-throughs never flatter it.
func (s *Service) Profit(ctx context.Context, from, to time.Time) (ProfitSummary, error) {
	if err := validateRange(from, to); err != nil {
		return ProfitSummary{}, err
	}
	var summary ProfitSummary
	err := s.cached(ctx, keyProfit(from, to), &summary, func(ctx context.Context) (interface{}, error) {
		p, err := s.repo.ProfitSummary(ctx, from, to)
		if err != nil {
			return nil, err
		}
		p.Profit = p.Revenue - p.Cost
		if p.Revenue != 0 {
			p.MarginPercent = p.Profit / p.Revenue * 100
		} else {
			p.MarginPercent = 0
		}
		return p, nil
	})
	return summary, err
}

// Collection returns the collection-efficiency summary for [from, to):
// how much of the booked order value has been recognised against what is
// still riding with couriers or waiting at the gateway.
func (s *Service) Collection(ctx context.Context, from, to time.Time) (CollectionSummary, error) {
	if err := validateRange(from, to); err != nil {
		return CollectionSummary{}, err
	}
	var summary CollectionSummary
	err := s.cached(ctx, keyCollection(from, to), &summary, func(ctx context.Context) (interface{}, error) {
		cs, err := s.repo.CollectionSummary(ctx, from, to)
		if err != nil {
			return nil, err
		}
		cs.EfficiencyPercent = collectionEfficiency(cs)
		return cs, nil
	})
	return summary, err
}

// collectionEfficiency is recognised revenue over everything booked. A
// period with nothing booked collected nothing, not everything.
func collectionEfficiency(cs CollectionSummary) float64 {
	booked := cs.RecognisedRevenue + cs.UnsettledCOD + cs.UnpaidOnline
	if booked == 0 {
		return 0
	}
	return cs.RecognisedRevenue / booked * 100
}

// Trend returns daily recognised sales for [from, to).
func (s *Service) Trend(ctx context.Context, from, to time.Time) ([]TrendPoint, error) {
	if err := validateRange(from, to); err != nil {
		return nil, err
	}
	var points []TrendPoint
	err := s.cached(ctx, keyTrend(from, to), &points, func(ctx context.Context) (interface{}, error) {
		return s.repo.DailyTrend(ctx, from, to)
	})
	return points, err
}

// Invalidate bumps the cache version after mutations that change reports.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) cached(ctx context.Context, keyBase string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	key, err := s.cache.BuildKey(ctx, keyBase)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}
