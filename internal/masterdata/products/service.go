package products

import (
	"context"
	"errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	return s.repo.Get(ctx, id)
}

// GetMany loads several products at once; order creation uses it to resolve
// prices and GST rates in one round trip.
func (s *Service) GetMany(ctx context.Context, ids []int64) (map[int64]Product, error) {
	if len(ids) == 0 {
		return map[int64]Product{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

func (s *Service) Update(ctx context.Context, id int64, product Product) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	if err := s.validate(product); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, product)
}

// Deactivate hides a product from the catalog. Products are never hard
// deleted; historical order lines keep referencing them.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	return s.repo.Deactivate(ctx, id)
}
