package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/whop-crm-go/internal/domain"
)

// ============================================================
// Notes
// ============================================================

func (c *Client) CreateNote(ctx context.Context, n *domain.Note) (*domain.Note, error) {
	var rows []domain.Note
	err := c.insert(ctx, "CreateNote", "notes", map[string]any{
		"member_id":  n.MemberID,
		"company_id": n.CompanyID,
		"content":    n.Content,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "member", ID: n.MemberID})
}

func (c *Client) ListNotes(ctx context.Context, memberID string, limit int) ([]domain.Note, error) {
	rows := make([]domain.Note, 0)
	path := "notes?member_id=" + eq(memberID) + "&order=created_at.desc,id.asc" + limitParam(limit)
	if err := c.selectRows(ctx, "ListNotes", path, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetNote(ctx context.Context, noteID string) (*domain.Note, error) {
	var rows []domain.Note
	if err := c.selectRows(ctx, "GetNote", "notes?id="+eq(noteID)+"&limit=1", &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "note", ID: noteID})
}

func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	_, err := c.remove(ctx, "DeleteNote", "notes?id="+eq(noteID))
	return err
}

// ============================================================
// Tags & member tags
// ============================================================

func (c *Client) ListTags(ctx context.Context, companyID string) ([]domain.Tag, error) {
	rows := make([]domain.Tag, 0)
	if err := c.selectRows(ctx, "ListTags", "tags?company_id="+eq(companyID)+"&order=name.asc", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) GetTag(ctx context.Context, companyID, tagID string) (*domain.Tag, error) {
	var rows []domain.Tag
	path := fmt.Sprintf("tags?id=%s&company_id=%s&limit=1", eq(tagID), eq(companyID))
	if err := c.selectRows(ctx, "GetTag", path, &rows); err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "tag", ID: tagID})
}

// CreateTag rejects a case-insensitive name clash within the company. The
// unique index on (company_id, lower(name)) backs the check.
func (c *Client) CreateTag(ctx context.Context, t *domain.Tag) (*domain.Tag, error) {
	dupErr := &domain.ErrDuplicate{Key: "tag:" + t.Name, Message: "Tag already exists"}

	var existing []domain.Tag
	path := "tags?select=id&company_id=" + eq(t.CompanyID) + "&name=ilike." + escapeLike(t.Name) + "&limit=1"
	if err := c.selectRows(ctx, "FindTag", path, &existing); err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, dupErr
	}

	var rows []domain.Tag
	err := c.insert(ctx, "CreateTag", "tags", map[string]any{
		"company_id": t.CompanyID,
		"name":       t.Name,
		"color":      t.Color,
	}, &rows)
	var dup *domain.ErrDuplicate
	if errors.As(err, &dup) {
		return nil, dupErr
	}
	if err != nil {
		return nil, err
	}
	return first(rows, &domain.ErrNotFound{Resource: "tag", ID: t.Name})
}

func (c *Client) DeleteTag(ctx context.Context, companyID, tagID string) error {
	n, err := c.remove(ctx, "DeleteTag", fmt.Sprintf("tags?id=%s&company_id=%s", eq(tagID), eq(companyID)))
	if err != nil {
		return err
	}
	if n == 0 {
		return &domain.ErrNotFound{Resource: "tag", ID: tagID}
	}
	return nil
}

func (c *Client) AddMemberTag(ctx context.Context, memberID, tagID string) (bool, error) {
	var rows []domain.MemberTag
	err := c.upsert(ctx, "AddMemberTag", "member_tags", "member_id,tag_id", map[string]any{
		"member_id": memberID,
		"tag_id":    tagID,
	}, true, &rows)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (c *Client) RemoveMemberTag(ctx context.Context, memberID, tagID string) (bool, error) {
	var rows []domain.MemberTag
	path := fmt.Sprintf("member_tags?member_id=%s&tag_id=%s", eq(memberID), eq(tagID))
	resp, err := c.exec(ctx, "RemoveMemberTag", http.MethodDelete, path, nil, preferReturn)
	if err != nil {
		return false, err
	}
	if err := decode("RemoveMemberTag", resp.body, &rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ListMemberTags embeds the tag of every assignment.
func (c *Client) ListMemberTags(ctx context.Context, memberIDs []string) ([]domain.MemberTag, error) {
	if len(memberIDs) == 0 {
		return []domain.MemberTag{}, nil
	}
	path := "member_tags?select=member_id,tag_id,created_at,tag:tags(*)&member_id=" + in(memberIDs) +
		"&order=member_id.asc,created_at.asc,tag_id.asc"
	return selectAll[domain.MemberTag](ctx, c, "ListMemberTags", path)
}
