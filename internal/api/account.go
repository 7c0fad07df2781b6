package api

import (
	"context"
	"net/http"

	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

// Me loads the signed-in user.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	raw, err := c.do(ctx, request{op: "load me", method: http.MethodGet, path: "/me", access: authenticated})
	if err != nil {
		return model.User{}, err
	}
	return mapper.DecodeUser("/me", raw)
}

func (c *Client) UpdateUsername(ctx context.Context, username string) (model.User, error) {
	raw, err := c.do(ctx, request{
		op:     "update username",
		method: http.MethodPatch,
		path:   "/me",
		body:   map[string]string{"username": username},
		access: authenticated,
	})
	if err != nil {
		return model.User{}, err
	}
	return mapper.DecodeUser("PATCH /me", raw)
}

func (c *Client) UpdatePassword(ctx context.Context, in model.PasswordChange) error {
	_, err := c.do(ctx, request{
		op:     "update password",
		method: http.MethodPatch,
		path:   "/me/password",
		body:   in,
		access: authenticated,
	})
	return err
}

// DeleteAccount deletes the signed-in user. The response body, if any, is
// ignored.
func (c *Client) DeleteAccount(ctx context.Context) error {
	_, err := c.do(ctx, request{op: "delete account", method: http.MethodDelete, path: "/me", access: authenticated})
	return err
}
