package supabase

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// ============================================================
// Dashboard insights
// ============================================================

func (c *Client) ListDashboardInsights(ctx context.Context, companyID string) ([]domain.DashboardInsight, error) {
	rows := make([]domain.DashboardInsight, 0)
	path := "dashboard_insights?company_id=" + eq(companyID) + "&is_active=eq.true&order=created_at.desc"
	if err := c.selectRows(ctx, "ListDashboardInsights", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReplaceDashboardInsights is a delete followed by a bulk insert; PostgREST
// gives no transaction across the two.
func (c *Client) ReplaceDashboardInsights(ctx context.Context, companyID string, insights []domain.DashboardInsight) ([]domain.DashboardInsight, error) {
	if _, err := c.remove(ctx, "DeleteDashboardInsights", "dashboard_insights?company_id="+eq(companyID)); err != nil {
		return nil, err
	}

	out := make([]domain.DashboardInsight, 0, len(insights))
	if len(insights) == 0 {
		return out, nil
	}
	rows := make([]map[string]any, 0, len(insights))
	for _, ins := range insights {
		ins.CompanyID = companyID
		ins.IsActive = true
		row, err := toRow(ins, "id", "created_at")
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := c.insert(ctx, "InsertDashboardInsights", "dashboard_insights", rows, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================
// Webhook deliveries
// ============================================================

func (c *Client) RecordDelivery(ctx context.Context, d *domain.WebhookDelivery) (bool, error) {
	var rows []domain.WebhookDelivery
	err := c.upsert(ctx, "RecordDelivery", "webhook_deliveries", "id", map[string]any{
		"id":          d.ID,
		"action":      d.Action,
		"received_at": d.ReceivedAt,
	}, true, &rows)
	if err != nil {
		return false, err
	}
	if len(rows) > 0 {
		return true, nil
	}

	// Reclaim a delivery whose processing failed. Only one redelivery can
	// match the non-empty error.
	err = c.patch(ctx, "ReclaimDelivery", "webhook_deliveries?id="+eq(d.ID)+"&error=neq.", map[string]any{
		"error":        "",
		"processed_at": nil,
		"received_at":  d.ReceivedAt,
	}, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) FinishDelivery(ctx context.Context, id string, at time.Time, processingErr string) error {
	var rows []domain.WebhookDelivery
	err := c.patch(ctx, "FinishDelivery", "webhook_deliveries?id="+eq(id), map[string]any{
		"processed_at": at,
		"error":        processingErr,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "webhook delivery", ID: id}
	}
	return nil
}
