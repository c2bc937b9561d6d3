package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// ============================================================
// Segments
// ============================================================

func (c *Client) ListSegments(ctx context.Context, companyID string) ([]domain.Segment, error) {
	rows := make([]domain.Segment, 0)
	if err := c.selectRows(ctx, "ListSegments", "segments?company_id="+eq(companyID)+"&order=created_at.desc", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetSegment(ctx context.Context, companyID, segmentID string) (*domain.Segment, error) {
	var rows []domain.Segment
	path := fmt.Sprintf("segments?id=%s&company_id=%s&limit=1", eq(segmentID), eq(companyID))
	if err := c.selectRows(ctx, "GetSegment", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "segment", ID: segmentID})
}

func (c *Client) CreateSegment(ctx context.Context, s *domain.Segment) (*domain.Segment, error) {
	row, err := toRow(s, "id", "created_at", "updated_at")
	if err != nil {
		return nil, err
	}
	var rows []domain.Segment
	if err := c.insert(ctx, "CreateSegment", "segments", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "segment", ID: s.Name})
}

func (c *Client) UpdateSegment(ctx context.Context, s *domain.Segment) (*domain.Segment, error) {
	var rows []domain.Segment
	path := fmt.Sprintf("segments?id=%s&company_id=%s", eq(s.ID), eq(s.CompanyID))
	err := c.patch(ctx, "UpdateSegment", path, map[string]any{
		"name":         s.Name,
		"description":  s.Description,
		"filters":      s.Filters,
		"member_count": s.MemberCount,
		"total_mrr":    s.TotalMRR,
		"updated_at":   c.now(),
	}, &rows)
	if err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "segment", ID: s.ID})
}

func (c *Client) DeleteSegment(ctx context.Context, companyID, segmentID string) error {
	n, err := c.remove(ctx, "DeleteSegment", fmt.Sprintf("segments?id=%s&company_id=%s", eq(segmentID), eq(companyID)))
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: "segment", ID: segmentID}
	}
	return nil
}

// ============================================================
// Automations
// ============================================================

func (c *Client) listAutomations(ctx context.Context, op, companyID string, activeOnly bool) ([]domain.Automation, error) {
	path := "automations?company_id=" + eq(companyID)
	if activeOnly {
		path += "&is_active=eq.true"
	}
	path += "&order=created_at.asc,id.asc"

	rows := make([]domain.Automation, 0)
	if err := c.selectRows(ctx, op, path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListAutomations(ctx context.Context, companyID string) ([]domain.Automation, error) {
	return c.listAutomations(ctx, "ListAutomations", companyID, false)
}

func (c *Client) ListActiveAutomations(ctx context.Context, companyID string) ([]domain.Automation, error) {
	return c.listAutomations(ctx, "ListActiveAutomations", companyID, true)
}

func (c *Client) GetAutomation(ctx context.Context, companyID, automationID string) (*domain.Automation, error) {
	var rows []domain.Automation
	path := fmt.Sprintf("automations?id=%s&company_id=%s&limit=1", eq(automationID), eq(companyID))
	if err := c.selectRows(ctx, "GetAutomation", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "automation", ID: automationID})
}

func (c *Client) CreateAutomation(ctx context.Context, a *domain.Automation) (*domain.Automation, error) {
	drop := []string{"id", "updated_at", "last_run_at"}
	if a.CreatedAt.IsZero() {
		drop = append(drop, "created_at")
	}
	row, err := toRow(a, drop...)
	if err != nil {
		return nil, err
	}
	var rows []domain.Automation
	if err := c.insert(ctx, "CreateAutomation", "automations", row, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "automation", ID: a.Name})
}

func (c *Client) SetAutomationActive(ctx context.Context, automationID string, active bool) error {
	var rows []domain.Automation
	err := c.patch(ctx, "SetAutomationActive", "automations?id="+eq(automationID), map[string]any{
		"is_active":  active,
		"updated_at": c.now(),
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	return nil
}

// RecordAutomationRun bumps run_count and stamps last_run_at.
func (c *Client) RecordAutomationRun(ctx context.Context, automationID string, at time.Time) error {
	var current []struct {
		RunCount int `json:"run_count"`
	}
	if err := c.selectRows(ctx, "GetAutomationRunCount", "automations?select=run_count&id="+eq(automationID), &current); err != nil {
		return err
	}
	if len(current) == 0 {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	return c.patch(ctx, "RecordAutomationRun", "automations?id="+eq(automationID), map[string]any{
		"run_count":   current[0].RunCount + 1,
		"last_run_at": at,
	}, nil)
}

func (c *Client) DeleteAutomation(ctx context.Context, companyID, automationID string) error {
	n, err := c.remove(ctx, "DeleteAutomation", fmt.Sprintf("automations?id=%s&company_id=%s", eq(automationID), eq(companyID)))
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: "automation", ID: automationID}
	}
	return nil
}
