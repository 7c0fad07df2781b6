package service

import (
	"context"

	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
)

// UserService holds the user reads. Account writes live on AuthService.
type UserService struct {
	api   UserAPI
	cache *querycache.Cache
}

func NewUserService(client UserAPI, cache *querycache.Cache) *UserService {
	return &UserService{api: client, cache: cache}
}

func (s *UserService) List(f model.UserFilters) *querycache.Infinite[model.User] {
	return querycache.NewInfinite(s.cache, UserListKey(f), func(ctx context.Context, page int) (model.Page[model.User], error) {
		return s.api.ListUsers(ctx, page, f)
	})
}

func (s *UserService) Get(ctx context.Context, id int64) (model.User, error) {
	return querycache.Query(ctx, s.cache, UserKey(id), func(ctx context.Context) (model.User, error) {
		return s.api.GetUser(ctx, id)
	})
}

func (s *UserService) Statistic(ctx context.Context, id int64) (model.UserStatistic, error) {
	return querycache.Query(ctx, s.cache, StatisticKey(id), s.fetchStatistic(id))
}

// ObserveStatistic keeps a user's statistic fresh; mutations that change it
// refetch it while observed.
func (s *UserService) ObserveStatistic(id int64, listener querycache.Listener) (stop func()) {
	return s.cache.Observe(StatisticKey(id), querycache.Typed(s.fetchStatistic(id)), listener)
}

func (s *UserService) fetchStatistic(id int64) func(context.Context) (model.UserStatistic, error) {
	return func(ctx context.Context) (model.UserStatistic, error) {
		return s.api.UserStatistic(ctx, id)
	}
}

// Me loads the signed-in user.
func (s *UserService) Me(ctx context.Context) (model.User, error) {
	return querycache.Query(ctx, s.cache, MeKey(), s.api.Me)
}

func (s *UserService) ObserveMe(listener querycache.Listener) (stop func()) {
	return s.cache.Observe(MeKey(), querycache.Typed(s.api.Me), listener)
}
