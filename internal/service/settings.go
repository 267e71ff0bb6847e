package service

import (
	"context"
	"errors"
	"strings"

	"grosirpos/backend/internal/domain"
)

// effectiveSettings falls back to defaults until an admin saves settings.
func (s *Service) effectiveSettings(ctx context.Context) (domain.Settings, error) {
	saved, err := s.repo.GetSettings(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultSettings(s.opts.DefaultTaxRate), nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return *saved, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	return s.effectiveSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	current, err := s.effectiveSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	apply(&current.StoreName, req.StoreName)
	apply(&current.Address, req.Address)
	apply(&current.Phone, req.Phone)
	apply(&current.Email, req.Email)
	apply(&current.ReceiptHeader, req.ReceiptHeader)
	apply(&current.ReceiptFooter, req.ReceiptFooter)
	apply(&current.Currency, req.Currency)
	if req.TaxRatePercent != nil {
		current.TaxRatePercent = *req.TaxRatePercent
	}

	v := domain.Violations{}
	v.Required("store_name", current.StoreName)
	v.Required("currency", current.Currency)
	v.Check("tax_rate_percent", domain.ValidTaxRate(current.TaxRatePercent), "out_of_range")
	if err := v.Err(); err != nil {
		return domain.Settings{}, err
	}

	saved, err := s.repo.SaveSettings(ctx, current)
	if err != nil {
		return domain.Settings{}, err
	}
	s.logAudit(ctx, "settings_update", "settings", "store", "tax_rate="+saved.TaxRatePercent.String())
	return *saved, nil
}
