package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

func pageQuery(page, limit int) url.Values {
	q := url.Values{}
	if page < 1 {
		page = 1
	}
	q.Set("page", strconv.Itoa(page))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func idPath(prefix string, id int64, rest ...string) string {
	p := prefix + "/" + strconv.FormatInt(id, 10)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListSnippets loads one page of GET /snippets. The list is public and is
// fetched without cookies.
func (c *Client) ListSnippets(ctx context.Context, page int, f model.SnippetFilters) (model.Page[model.Snippet], error) {
	q := pageQuery(page, f.Limit)
	if f.UserID != 0 {
		q.Set("userId", strconv.FormatInt(f.UserID, 10))
	}
	for _, s := range f.SortBy {
		q.Add("sortBy", s)
	}

	raw, err := c.do(ctx, request{op: "load snippets", method: http.MethodGet, path: "/snippets", query: q})
	if err != nil {
		return model.Page[model.Snippet]{}, err
	}
	return mapper.DecodeSnippetPage(raw)
}

func (c *Client) GetSnippet(ctx context.Context, id int64) (model.Snippet, error) {
	raw, err := c.do(ctx, request{
		op:     "load snippet " + strconv.FormatInt(id, 10),
		method: http.MethodGet,
		path:   idPath("/snippets", id),
		access: authenticated,
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return mapper.DecodeSnippet("/snippets/{id}", raw)
}

func (c *Client) CreateSnippet(ctx context.Context, in model.SnippetInput) (model.Snippet, error) {
	raw, err := c.do(ctx, request{
		op:     "create snippet",
		method: http.MethodPost,
		path:   "/snippets",
		body:   in,
		access: authenticated,
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return mapper.DecodeSnippet("POST /snippets", raw)
}

// UpdateSnippet returns the number of rows the backend reports as updated.
func (c *Client) UpdateSnippet(ctx context.Context, id int64, in model.SnippetInput) (int64, error) {
	raw, err := c.do(ctx, request{
		op:     "update snippet " + strconv.FormatInt(id, 10),
		method: http.MethodPatch,
		path:   idPath("/snippets", id),
		body:   in,
		access: authenticated,
	})
	if err != nil {
		return 0, err
	}
	return mapper.DecodeUpdated("PATCH /snippets/{id}", raw)
}

// DeleteSnippet returns the snippet as it was before deletion.
func (c *Client) DeleteSnippet(ctx context.Context, id int64) (model.Snippet, error) {
	raw, err := c.do(ctx, request{
		op:     "delete snippet " + strconv.FormatInt(id, 10),
		method: http.MethodDelete,
		path:   idPath("/snippets", id),
		access: authenticated,
	})
	if err != nil {
		return model.Snippet{}, err
	}
	return mapper.DecodeSnippet("DELETE /snippets/{id}", raw)
}

func (c *Client) MarkSnippet(ctx context.Context, id int64, kind model.MarkKind) error {
	_, err := c.do(ctx, request{
		op:     "mark snippet " + strconv.FormatInt(id, 10),
		method: http.MethodPost,
		path:   idPath("/snippets", id, "mark"),
		body:   map[string]model.MarkKind{"mark": kind},
		access: authenticated,
	})
	return err
}

// Languages lists the languages snippets can be written in.
func (c *Client) Languages(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, request{
		op:     "load languages",
		method: http.MethodGet,
		path:   "/snippets/languages",
		access: authenticated,
	})
	if err != nil {
		return nil, err
	}
	return mapper.DecodeLanguages(raw)
}
