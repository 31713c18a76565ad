package controller

import (
	"context"

	"github.com/crm-integrations/saby-connector/internal/domain"
)

// CRMService is the contract the HTTP layer depends on for talking to the CRM.
type CRMService interface {
	CreateDeal(ctx context.Context, dealRequest *domain.CreateDealRequest) (*domain.DealResponse, error)
	GetDealStatus(ctx context.Context, documentId int) (map[string]interface{}, error)
	GetThemeByName(ctx context.Context, themeName string) (domain.ThemeInfo, error)
	FindOrCreateClient(ctx context.Context, clientData map[string]interface{}) (string, error)
}

// HealthChecker reports whether the upstream CRM is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context, themeName string) error
}
