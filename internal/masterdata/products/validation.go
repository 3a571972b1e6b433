package products

import (
	"errors"
	"strings"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return errors.New("product code is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	if p.Price < 0 {
		return errors.New("product price must be >= 0")
	}
	if p.CostPrice < 0 {
		return errors.New("product cost price must be >= 0")
	}
	if p.GSTRatePercent != nil && (*p.GSTRatePercent < 0 || *p.GSTRatePercent > 100) {
		return errors.New("gst rate must be between 0 and 100")
	}
	return nil
}
