package service

import (
	"context"
	"strings"

	"grosirpos/backend/internal/domain"
)

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:             strings.TrimSpace(req.Name),
		Phone:            strings.TrimSpace(req.Phone),
		Email:            strings.TrimSpace(req.Email),
		Type:             req.Type,
		CreditLimitCents: req.CreditLimitCents,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.invalidateReports(ctx)
	s.logAudit(ctx, "customer_create", "customer", created.ID, "type="+string(created.Type))
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateVendor(ctx context.Context, req domain.VendorCreateRequest) (domain.Vendor, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Vendor{}, err
	}
	created, err := s.repo.CreateVendor(ctx, domain.Vendor{
		Name:          strings.TrimSpace(req.Name),
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
		Address:       strings.TrimSpace(req.Address),
		TaxID:         strings.TrimSpace(req.TaxID),
	})
	if err != nil {
		return domain.Vendor{}, err
	}
	s.logAudit(ctx, "vendor_create", "vendor", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListVendors(ctx)
}

func (s *Service) GetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Vendor{}, err
	}
	vendor, err := s.repo.GetVendor(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Vendor{}, err
	}
	return *vendor, nil
}
