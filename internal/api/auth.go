package api

import (
	"context"
	"net/http"

	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

// Login signs in and stores the session cookie the backend sets.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.User, error) {
	raw, err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/auth/login",
		body:   creds,
		access: credentialed,
	})
	if err != nil {
		return model.User{}, err
	}
	return mapper.DecodeUser("POST /auth/login", raw)
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "logout", method: http.MethodPost, path: "/auth/logout", access: credentialed})
	return err
}

func (c *Client) Register(ctx context.Context, creds model.Credentials) error {
	_, err := c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   "/register",
		body:   creds,
		access: credentialed,
	})
	return err
}
