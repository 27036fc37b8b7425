package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sparkpilot/sparkpilot/internal/domain"
	infraerrors "github.com/sparkpilot/sparkpilot/internal/pkg/errors"
)

var (
	ErrTenantNotFound   = infraerrors.NotFound("TENANT_NOT_FOUND", "Tenant not found.")
	ErrTenantNameExists = infraerrors.Conflict("TENANT_NAME_CONFLICT", "Tenant name already exists.")
)

type TenantRepository interface {
	Insert(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByName(ctx context.Context, name string) (*domain.Tenant, error)
}

type TenantService struct {
	tenants TenantRepository
	audit   *AuditWriter
	tx      TxRunner
}

func NewTenantService(tenants TenantRepository, audit *AuditWriter, tx TxRunner) *TenantService {
	return &TenantService{tenants: tenants, audit: audit, tx: tx}
}

type CreateTenantInput struct {
	Name string
}

func (s *TenantService) Create(ctx context.Context, meta RequestMeta, input CreateTenantInput) (*domain.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if len(name) < 3 || len(name) > 255 {
		return nil, infraerrors.UnprocessableEntity("TENANT_NAME_INVALID", "name must be between 3 and 255 characters.")
	}

	var tenant *domain.Tenant
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		existing, err := s.tenants.GetByName(txCtx, name)
		if err != nil {
			return fmt.Errorf("lookup tenant by name: %w", err)
		}
		if existing != nil {
			return ErrTenantNameExists
		}
		tenant = &domain.Tenant{ID: uuid.NewString(), Name: name}
		if err := s.tenants.Insert(txCtx, tenant); err != nil {
			return fmt.Errorf("insert tenant: %w", err)
		}
		return s.audit.Write(txCtx, &domain.AuditEvent{
			TenantID:   tenant.ID,
			Actor:      meta.Actor,
			Action:     "tenant.create",
			SourceIP:   meta.SourceIP,
			EntityType: "tenant",
			EntityID:   tenant.ID,
			Details:    map[string]any{"name": tenant.Name},
		})
	})
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	tenant, err := s.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}
	return tenant, nil
}
