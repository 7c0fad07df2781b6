package mapper

import (
	"encoding/json"

	"github.com/sakif/snippethub/internal/model"
)

type wireUser struct {
	ID       *Number `json:"id" validate:"required"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
}

// wireAuthorRef is an optional, loosely typed author. Entities that embed one
// decide themselves what a missing author means.
type wireAuthorRef struct {
	ID       *Number `json:"id"`
	Username *string `json:"username"`
	Role     string  `json:"role"`
}

func mapUser(w wireUser) (model.User, error) {
	id, err := idOf(w.ID)
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Username: w.Username, Role: w.Role}, nil
}

// resolveAuthor reports ok=false when ref lacks an id or a username.
func resolveAuthor(ref *wireAuthorRef) (model.Author, bool, error) {
	if ref == nil || ref.ID == nil || ref.Username == nil {
		return model.Author{}, false, nil
	}
	id, err := ref.ID.Int64()
	if err != nil {
		return model.Author{}, false, err
	}
	return model.Author{ID: id, Username: *ref.Username, Role: ref.Role}, true, nil
}

// DecodeUser maps GET /users/{id}, GET /me, PATCH /me and POST /auth/login.
// The user may arrive bare or nested under a "user" key.
func DecodeUser(endpoint string, raw []byte) (model.User, error) {
	var nested struct {
		User json.RawMessage `json:"user"`
	}
	body := Unwrap(raw)
	if err := json.Unmarshal(body, &nested); err == nil && len(nested.User) > 0 && nested.User[0] == '{' {
		body = nested.User
	}

	var w wireUser
	if err := decode(endpoint, body, &w); err != nil {
		return model.User{}, err
	}
	return mapUser(w)
}

// DecodeUserPage maps GET /users.
func DecodeUserPage(raw []byte) (model.Page[model.User], error) {
	var w wirePage[wireUser]
	if err := decode("/users", raw, &w); err != nil {
		return model.Page[model.User]{}, err
	}
	return toPage(&w, always(mapUser))
}

// wireStatistic lists every spelling the backend has used for each counter.
type wireStatistic struct {
	Snippets            *Number `json:"snippets"`
	SnippetsCount       *Number `json:"snippetsCount"`
	Questions           *Number `json:"questions"`
	QuestionsCount      *Number `json:"questionsCount"`
	Answers             *Number `json:"answers"`
	AnswersCount        *Number `json:"answersCount"`
	Likes               *Number `json:"likes"`
	LikesCount          *Number `json:"likesCount"`
	Dislikes            *Number `json:"dislikes"`
	DislikesCount       *Number `json:"dislikesCount"`
	Comments            *Number `json:"comments"`
	CommentsCount       *Number `json:"commentsCount"`
	CorrectAnswersCount *Number `json:"correctAnswersCount"`
	RegularAnswersCount *Number `json:"regularAnswersCount"`
	Rating              *Number `json:"rating"`
}

type wireStatisticEnvelope struct {
	Statistic *wireStatistic `json:"statistic" validate:"required"`
}

// DecodeStatistic maps GET /users/{id}/statistic, whose payload is
// `{statistic: {...}}`. Missing or unparsable counters read as zero, and
// answersCount falls back to correct + regular answers.
func DecodeStatistic(userID int64, raw []byte) (model.UserStatistic, error) {
	var w wireStatisticEnvelope
	if err := decode("/users/{id}/statistic", raw, &w); err != nil {
		return model.UserStatistic{}, err
	}
	s := w.Statistic

	correct := countOrZero(s.CorrectAnswersCount)
	regular := countOrZero(s.RegularAnswersCount)
	answers := countOrZero(firstOf(s.AnswersCount, s.Answers))
	if answers == 0 {
		answers = correct + regular
	}

	var rating float64
	if s.Rating != nil {
		if f, err := toFloat(s.Rating.String()); err == nil {
			rating = f
		}
	}

	return model.UserStatistic{
		UserID:              userID,
		SnippetsCount:       countOrZero(firstOf(s.SnippetsCount, s.Snippets)),
		QuestionsCount:      countOrZero(firstOf(s.QuestionsCount, s.Questions)),
		AnswersCount:        answers,
		CorrectAnswersCount: correct,
		RegularAnswersCount: regular,
		LikesCount:          countOrZero(firstOf(s.LikesCount, s.Likes)),
		DislikesCount:       countOrZero(firstOf(s.DislikesCount, s.Dislikes)),
		CommentsCount:       countOrZero(firstOf(s.CommentsCount, s.Comments)),
		Rating:              rating,
	}, nil
}

func firstOf(ns ...*Number) *Number {
	for _, n := range ns {
		if n != nil && n.raw != "" {
			return n
		}
	}
	return nil
}

func countOrZero(n *Number) int64 {
	if n == nil {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}

// ErrorMessage extracts the human-readable message from an error body:
// `{"message": "..."}` or `{"error": "..."}`, possibly enveloped. NestJS
// style validation errors send message as a list; the first entry is used.
func ErrorMessage(raw []byte) string {
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(Unwrap(raw), &body); err != nil {
		return ""
	}
	for _, field := range []json.RawMessage{body.Message, body.Error} {
		if len(field) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(field, &s); err == nil && s != "" {
			return s
		}
		var list []string
		if err := json.Unmarshal(field, &list); err == nil && len(list) > 0 {
			return list[0]
		}
	}
	return ""
}
