package service

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/auth"
	"github.com/sakif/snippethub/internal/live"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/mutation"
	"github.com/sakif/snippethub/internal/querycache"
)

// RoomID is the live room of a snippet's comment thread.
func RoomID(snippetID int64) string {
	return "snippet:" + strconv.FormatInt(snippetID, 10)
}

// CommentService opens the live comment thread of a snippet. The thread
// starts from the snippet's cached comments and reloads them after every
// reconnect.
type CommentService struct {
	hub      *live.Hub
	snippets *SnippetService
	session  *auth.Session
	logger   *slog.Logger
}

func NewCommentService(hub *live.Hub, snippets *SnippetService, session *auth.Session, logger *slog.Logger) *CommentService {
	return &CommentService{hub: hub, snippets: snippets, session: session, logger: orDiscard(logger)}
}

// Thread is one open comment thread.
type Thread struct {
	*live.Room
	snippetID int64
	svc       *CommentService
}

// Open loads the snippet and joins its room. onChange may be nil.
func (s *CommentService) Open(ctx context.Context, snippetID int64, onChange func([]model.Comment)) (*Thread, error) {
	sn, err := s.snippets.Get(ctx, snippetID)
	if err != nil {
		return nil, err
	}

	roomID := RoomID(snippetID)
	room := live.Join(s.hub, live.RoomOptions{
		ID:      roomID,
		Initial: liveComments(roomID, sn.Comments),
		Resync: func(ctx context.Context) ([]model.Comment, error) {
			sn, err := s.snippets.Refetch(ctx, snippetID)
			if err != nil {
				return nil, err
			}
			return liveComments(roomID, sn.Comments), nil
		},
		OnChange: onChange,
		Logger:   s.logger,
	})
	return &Thread{Room: room, snippetID: snippetID, svc: s}, nil
}

// Post submits body as the signed-in user.
func (t *Thread) Post(ctx context.Context, body string) (model.Comment, error) {
	user, ok := t.svc.session.User()
	if !ok {
		return model.Comment{}, &apperror.AppError{Err: apperror.ErrUnauthorized, Message: "sign in to comment"}
	}
	return t.Submit(ctx, body, model.Author{ID: user.ID, Username: user.Username, Role: user.Role})
}

// Close leaves the room, then refreshes the snippet and the statistic its
// comment counters feed into.
func (t *Thread) Close() {
	t.Room.Close()

	keys := []querycache.Key{SnippetKey(t.snippetID)}
	if me := meID(t.svc.session); me != 0 {
		keys = append(keys, StatisticKey(me))
	}
	mutation.InvalidateAll(context.Background(), t.svc.snippets.cache, t.svc.logger, keys...)
}

func liveComments(roomID string, in []model.SnippetComment) []model.Comment {
	out := make([]model.Comment, 0, len(in))
	for _, c := range in {
		out = append(out, model.Comment{
			ID:        c.ID,
			RoomID:    roomID,
			Body:      c.Content,
			Author:    c.Author,
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}
