package service

import (
	"context"
	"log/slog"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
)

// UpdateUsername renames the signed-in user and replaces the session user
// with the backend's answer.
func (s *AuthService) UpdateUsername(ctx context.Context, username string) (model.User, error) {
	if err := required("username", username, "username must not be empty"); err != nil {
		return model.User{}, err
	}
	return s.updateUsername.Run(ctx, username)
}

func (s *AuthService) UpdatePassword(ctx context.Context, in model.PasswordChange) error {
	if in.OldPassword == "" || in.NewPassword == "" {
		return apperror.ValidationFailed("password", "password must not be empty")
	}
	_, err := s.updatePassword.Run(ctx, in)
	return err
}

// DeleteAccount deletes the signed-in user, then clears the cache and the
// session.
func (s *AuthService) DeleteAccount(ctx context.Context) error {
	if _, err := s.deleteAccount.Run(ctx, struct{}{}); err != nil {
		return err
	}
	s.logger.Info("account deleted")
	return nil
}

// forgetLogged is forget for callbacks that cannot return an error.
func (s *AuthService) forgetLogged(ctx context.Context) {
	if err := s.forget(ctx); err != nil {
		s.logger.Warn("failed to clear session", slog.String("error", err.Error()))
	}
}
