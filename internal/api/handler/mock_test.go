package handler

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/hostname"
)

type mockDomainService struct {
	mock.Mock
}

func (m *mockDomainService) Add(ctx context.Context, tenantID, domain string) (*core.DomainView, error) {
	args := m.Called(ctx, tenantID, domain)
	v, _ := args.Get(0).(*core.DomainView)
	return v, args.Error(1)
}

func (m *mockDomainService) List(ctx context.Context, tenantID string) ([]core.DomainView, error) {
	args := m.Called(ctx, tenantID)
	v, _ := args.Get(0).([]core.DomainView)
	return v, args.Error(1)
}

func (m *mockDomainService) Get(ctx context.Context, tenantID, id string) (*core.DomainView, error) {
	args := m.Called(ctx, tenantID, id)
	v, _ := args.Get(0).(*core.DomainView)
	return v, args.Error(1)
}

func (m *mockDomainService) Delete(ctx context.Context, tenantID, id string) error {
	return m.Called(ctx, tenantID, id).Error(0)
}

func (m *mockDomainService) Verify(ctx context.Context, tenantID, id string) (*core.DomainView, error) {
	args := m.Called(ctx, tenantID, id)
	v, _ := args.Get(0).(*core.DomainView)
	return v, args.Error(1)
}

func (m *mockDomainService) Recheck(ctx context.Context, tenantID, id string) (*core.DomainView, error) {
	args := m.Called(ctx, tenantID, id)
	v, _ := args.Get(0).(*core.DomainView)
	return v, args.Error(1)
}

func (m *mockDomainService) Instructions(ctx context.Context, tenantID, id string) (hostname.DNSInstruction, error) {
	args := m.Called(ctx, tenantID, id)
	v, _ := args.Get(0).(hostname.DNSInstruction)
	return v, args.Error(1)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, host string) (string, error) {
	args := m.Called(ctx, host)
	return args.String(0), args.Error(1)
}
