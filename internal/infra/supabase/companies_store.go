package supabase

import (
	"context"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// companyRow carries the token columns the domain type hides from JSON.
type companyRow struct {
	ID             string     `json:"id"`
	WhopCompanyID  string     `json:"whop_company_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	IsActive       bool       `json:"is_active"`
	LastSyncedAt   *time.Time `json:"last_synced_at"`
	AccessToken    string     `json:"access_token"`
	RefreshToken   string     `json:"refresh_token"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (r companyRow) toDomain() *domain.Company {
	return &domain.Company{
		ID:             r.ID,
		WhopCompanyID:  r.WhopCompanyID,
		Name:           r.Name,
		Email:          r.Email,
		IsActive:       r.IsActive,
		LastSyncedAt:   r.LastSyncedAt,
		AccessToken:    r.AccessToken,
		RefreshToken:   r.RefreshToken,
		TokenExpiresAt: r.TokenExpiresAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (c *Client) getCompanyBy(ctx context.Context, op, column, value string) (*domain.Company, error) {
	var rows []companyRow
	if err := c.selectRows(ctx, op, "companies?"+column+"="+eq(value)+"&limit=1", &rows); err != nil {
		return nil, err
	}
	row, err := first(rows, &domain.ErrNotFound{Resource: "company", ID: value})
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c *Client) GetCompany(ctx context.Context, id string) (*domain.Company, error) {
	return c.getCompanyBy(ctx, "GetCompany", "id", id)
}

func (c *Client) GetCompanyByWhopID(ctx context.Context, whopCompanyID string) (*domain.Company, error) {
	return c.getCompanyBy(ctx, "GetCompanyByWhopID", "whop_company_id", whopCompanyID)
}

// UpsertCompany inserts or merges on whop_company_id. Empty name, email and
// token fields leave the stored values untouched.
func (c *Client) UpsertCompany(ctx context.Context, in *domain.Company) (*domain.Company, error) {
	row := map[string]any{
		"whop_company_id": in.WhopCompanyID,
		"is_active":       true,
		"updated_at":      c.now(),
	}
	if in.Name != "" {
		row["name"] = in.Name
	}
	if in.Email != "" {
		row["email"] = in.Email
	}
	if in.AccessToken != "" {
		row["access_token"] = in.AccessToken
		row["refresh_token"] = in.RefreshToken
		row["token_expires_at"] = in.TokenExpiresAt
	}

	var rows []companyRow
	if err := c.upsert(ctx, "UpsertCompany", "companies", "whop_company_id", row, false, &rows); err != nil {
		return nil, err
	}
	saved, err := first(rows, &domain.ErrNotFound{Resource: "company", ID: in.WhopCompanyID})
	if err != nil {
		return nil, err
	}
	return saved.toDomain(), nil
}

func (c *Client) TouchCompanySync(ctx context.Context, id string, at time.Time) error {
	var rows []companyRow
	err := c.patch(ctx, "TouchCompanySync", "companies?id="+eq(id), map[string]any{
		"last_synced_at": at,
		"updated_at":     at,
	}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return &domain.ErrNotFound{Resource: "company", ID: id}
	}
	return nil
}
