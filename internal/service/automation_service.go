package service

import (
	"context"

	"github.com/boddenberg/whop-crm-go/internal/domain"
	"github.com/boddenberg/whop-crm-go/internal/port"

	"go.uber.org/zap"
)

type automationCRUDStore interface {
	port.AutomationStore
	port.TagStore
}

// AutomationService manages stored automations.
type AutomationService struct {
	store  automationCRUDStore
	logger *zap.Logger
}

// NewAutomationService creates an automation service.
func NewAutomationService(store automationCRUDStore, logger *zap.Logger) *AutomationService {
	return &AutomationService{store: store, logger: logger}
}

// ListAutomations returns every automation of the company.
func (s *AutomationService) ListAutomations(ctx context.Context, companyID string) ([]domain.Automation, error) {
	return s.store.ListAutomations(ctx, companyID)
}

// CreateAutomation validates and stores a new, active automation. Tag
// actions must reference tags of the same company.
func (s *AutomationService) CreateAutomation(ctx context.Context, companyID string, in domain.AutomationInput) (*domain.Automation, error) {
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	for _, a := range in.Actions {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		var tagID string
		switch a := a.(type) {
		case domain.AddTagAction:
			tagID = a.TagID
		case domain.RemoveTagAction:
			tagID = a.TagID
		}
		if tagID == "" {
			continue
		}
		if _, err := s.store.GetTag(ctx, companyID, tagID); err != nil {
			return nil, &domain.ErrValidation{Field: "actions", Message: "unknown tag " + tagID}
		}
	}

	created, err := s.store.CreateAutomation(ctx, &domain.Automation{
		CompanyID:   companyID,
		Name:        sanitizeText(in.Name),
		Description: sanitizeText(in.Description),
		Trigger:     in.Trigger,
		Actions:     in.Actions,
		IsActive:    true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("automation created",
		zap.String("company_id", companyID),
		zap.String("automation_id", created.ID),
		zap.String("trigger", string(created.Trigger.Type)),
	)
	return created, nil
}

// ToggleAutomation sets whether an automation runs.
func (s *AutomationService) ToggleAutomation(ctx context.Context, companyID, automationID string, active bool) (*domain.Automation, error) {
	a, err := s.store.GetAutomation(ctx, companyID, automationID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAutomationActive(ctx, a.ID, active); err != nil {
		return nil, err
	}
	a.IsActive = active
	return a, nil
}

// DeleteAutomation removes an automation.
func (s *AutomationService) DeleteAutomation(ctx context.Context, companyID, automationID string) error {
	return s.store.DeleteAutomation(ctx, companyID, automationID)
}
