package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

func (c *Client) ListUsers(ctx context.Context, page int, f model.UserFilters) (model.Page[model.User], error) {
	q := pageQuery(page, f.Limit)
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	for _, s := range f.SearchBy {
		q.Add("searchBy", s)
	}
	for _, s := range f.SortBy {
		q.Add("sortBy", s)
	}

	raw, err := c.do(ctx, request{op: "load users", method: http.MethodGet, path: "/users", query: q, access: authenticated})
	if err != nil {
		return model.Page[model.User]{}, err
	}
	return mapper.DecodeUserPage(raw)
}

func (c *Client) GetUser(ctx context.Context, id int64) (model.User, error) {
	raw, err := c.do(ctx, request{
		op:     "load user " + strconv.FormatInt(id, 10),
		method: http.MethodGet,
		path:   idPath("/users", id),
		access: authenticated,
	})
	if err != nil {
		return model.User{}, err
	}
	return mapper.DecodeUser("/users/{id}", raw)
}

func (c *Client) UserStatistic(ctx context.Context, id int64) (model.UserStatistic, error) {
	raw, err := c.do(ctx, request{
		op:     "load statistic of user " + strconv.FormatInt(id, 10),
		method: http.MethodGet,
		path:   idPath("/users", id, "statistic"),
		access: authenticated,
	})
	if err != nil {
		return model.UserStatistic{}, err
	}
	return mapper.DecodeStatistic(id, raw)
}
