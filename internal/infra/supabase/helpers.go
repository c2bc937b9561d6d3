package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================
// HTTP helpers for GET, POST, PATCH, DELETE
// ============================================================

const (
	preferReturn     = "return=representation"
	preferMinimal    = "return=minimal"
	preferMerge      = "resolution=merge-duplicates,return=representation"
	preferIgnoreDups = "resolution=ignore-duplicates,return=representation"
)

// selectRows GETs path and decodes the JSON array into out.
func (c *Client) selectRows(ctx context.Context, op, path string, out any) error {
	resp, err := c.exec(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

// maxRowsPage matches the max-rows cap Supabase applies to every response.
const maxRowsPage = 1000

// selectAll pages through path with limit/offset until a short page comes
// back. path must carry a total order so pages do not overlap.
func selectAll[T any](ctx context.Context, c *Client, op, path string) ([]T, error) {
	out := make([]T, 0)
	for offset := 0; ; offset += maxRowsPage {
		var page []T
		paged := fmt.Sprintf("%s&limit=%d&offset=%d", path, maxRowsPage, offset)
		if err := c.selectRows(ctx, op, paged, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < maxRowsPage {
			return out, nil
		}
	}
}

// insert POSTs rows (one object or an array) and decodes the inserted rows.
func (c *Client) insert(ctx context.Context, op, table string, rows any, out any) error {
	resp, err := c.exec(ctx, op, http.MethodPost, table, rows, preferReturn)
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

// upsert POSTs with on_conflict. ignoreDuplicates leaves existing rows alone
// and returns only the inserted ones.
func (c *Client) upsert(ctx context.Context, op, table, onConflict string, rows any, ignoreDuplicates bool, out any) error {
	prefer := preferMerge
	if ignoreDuplicates {
		prefer = preferIgnoreDups
	}
	path := table + "?on_conflict=" + url.QueryEscape(onConflict)
	resp, err := c.exec(ctx, op, http.MethodPost, path, rows, prefer)
	if err != nil {
		return err
	}
	return decode(op, resp.body, out)
}

// patch updates the rows matched by path. With out set the updated rows are
// returned.
func (c *Client) patch(ctx context.Context, op, path string, fields map[string]any, out any) error {
	prefer := preferMinimal
	if out != nil {
		prefer = preferReturn
	}
	resp, err := c.exec(ctx, op, http.MethodPatch, path, fields, prefer)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode(op, resp.body, out)
}

// remove deletes the rows matched by path and returns how many went.
func (c *Client) remove(ctx context.Context, op, path string) (int, error) {
	resp, err := c.exec(ctx, op, http.MethodDelete, withSelect(path, "id"), nil, preferReturn)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if err := decode(op, resp.body, &rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func decode(op string, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", op, err)
	}
	return nil
}

// ============================================================
// Query builders
// ============================================================

func eq(v string) string { return "eq." + url.QueryEscape(v) }

func ts(t time.Time) string { return url.QueryEscape(t.UTC().Format(time.RFC3339Nano)) }

// in builds an in.(…) filter. Values are double-quoted so commas survive.
func in(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + url.QueryEscape(strings.Join(quoted, ",")) + ")"
}

// ilikeAny builds an or=(col.ilike.*term*,…) filter value.
func ilikeAny(term string, cols ...string) string {
	term = strings.NewReplacer(",", " ", "(", " ", ")", " ", "*", " ").Replace(term)
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + ".ilike.*" + term + "*"
	}
	return url.QueryEscape("(" + strings.Join(parts, ",") + ")")
}

// escapeLike quotes LIKE wildcards so the value matches literally.
func escapeLike(v string) string {
	return url.QueryEscape(strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(v))
}

func withSelect(path, columns string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "select=" + columns
}

// toRow converts v to a column map, dropping server-assigned columns.
func toRow(v any, drop ...string) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	row := make(map[string]any)
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	for _, k := range drop {
		delete(row, k)
	}
	return row, nil
}

// first returns the first element of rows, or notFound when there is none.
func first[T any](rows []T, notFound error) (*T, error) {
	if len(rows) == 0 {
		return nil, notFound
	}
	return &rows[0], nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
