package mapper

import (
	"errors"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
)

type wireAnswer struct {
	ID        *Number        `json:"id" validate:"required"`
	Content   string         `json:"content"`
	IsCorrect bool           `json:"isCorrect"`
	User      *wireAuthorRef `json:"user"`
}

type wireQuestion struct {
	ID           *Number        `json:"id" validate:"required"`
	Title        string         `json:"title"`
	Description  *string        `json:"description"`
	AttachedCode *string        `json:"attachedCode"`
	IsResolved   bool           `json:"isResolved"`
	Answers      []wireAnswer   `json:"answers" validate:"omitempty,dive"`
	User         *wireAuthorRef `json:"user"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
}

// mapAnswer reports ok=false for an answer without a resolvable author.
func mapAnswer(w wireAnswer) (model.Answer, bool, error) {
	author, ok, err := resolveAuthor(w.User)
	if err != nil || !ok {
		return model.Answer{}, false, err
	}
	id, err := idOf(w.ID)
	if err != nil {
		return model.Answer{}, false, err
	}
	return model.Answer{ID: id, Content: w.Content, IsCorrect: w.IsCorrect, Author: author}, true, nil
}

func mapQuestion(w wireQuestion) (model.Question, error) {
	id, err := idOf(w.ID)
	if err != nil {
		return model.Question{}, err
	}

	author, ok, err := resolveAuthor(w.User)
	if err != nil {
		return model.Question{}, err
	}
	if !ok {
		author = model.UnknownAuthor
	}

	answers := make([]model.Answer, 0, len(w.Answers))
	for _, wa := range w.Answers {
		a, ok, err := mapAnswer(wa)
		if err != nil {
			return model.Question{}, err
		}
		if ok {
			answers = append(answers, a)
		}
	}

	q := model.Question{
		ID:           id,
		Title:        w.Title,
		Resolved:     w.IsResolved,
		Answers:      answers,
		AnswersCount: len(w.Answers),
		Author:       author,
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
	}
	if w.Description != nil {
		q.Body = *w.Description
	}
	if w.AttachedCode != nil {
		q.Code = *w.AttachedCode
	}
	return q, nil
}

// DecodeQuestion maps a single question: GET/PATCH/DELETE /questions/{id}
// and POST /questions.
func DecodeQuestion(endpoint string, raw []byte) (model.Question, error) {
	var w wireQuestion
	if err := decode(endpoint, raw, &w); err != nil {
		return model.Question{}, err
	}
	return mapQuestion(w)
}

// DecodeQuestionPage maps GET /questions.
func DecodeQuestionPage(raw []byte) (model.Page[model.Question], error) {
	var w wirePage[wireQuestion]
	if err := decode("/questions", raw, &w); err != nil {
		return model.Page[model.Question]{}, err
	}
	return toPage(&w, always(mapQuestion))
}

var errAnswerWithoutAuthor = errors.New("answer has no author")

// DecodeAnswer maps POST /answers. Unlike answers nested in a question, a
// freshly created answer without an author is a shape error.
func DecodeAnswer(raw []byte) (model.Answer, error) {
	var w wireAnswer
	if err := decode("POST /answers", raw, &w); err != nil {
		return model.Answer{}, err
	}
	a, ok, err := mapAnswer(w)
	if err != nil {
		return model.Answer{}, err
	}
	if !ok {
		return model.Answer{}, apperror.ShapeMismatch("POST /answers", errAnswerWithoutAuthor)
	}
	return a, nil
}
