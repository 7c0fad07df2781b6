package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sakif/snippethub/internal/mapper"
	"github.com/sakif/snippethub/internal/model"
)

func (c *Client) ListQuestions(ctx context.Context, page int, f model.QuestionFilters) (model.Page[model.Question], error) {
	raw, err := c.do(ctx, request{
		op:     "load questions",
		method: http.MethodGet,
		path:   "/questions",
		query:  pageQuery(page, f.Limit),
		access: authenticated,
	})
	if err != nil {
		return model.Page[model.Question]{}, err
	}
	return mapper.DecodeQuestionPage(raw)
}

func (c *Client) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	raw, err := c.do(ctx, request{
		op:     "load question " + strconv.FormatInt(id, 10),
		method: http.MethodGet,
		path:   idPath("/questions", id),
		access: authenticated,
	})
	if err != nil {
		return model.Question{}, err
	}
	return mapper.DecodeQuestion("/questions/{id}", raw)
}

func (c *Client) CreateQuestion(ctx context.Context, in model.QuestionInput) (model.Question, error) {
	raw, err := c.do(ctx, request{
		op:     "create question",
		method: http.MethodPost,
		path:   "/questions",
		body:   in,
		access: authenticated,
	})
	if err != nil {
		return model.Question{}, err
	}
	return mapper.DecodeQuestion("POST /questions", raw)
}

func (c *Client) UpdateQuestion(ctx context.Context, id int64, in model.QuestionInput) (int64, error) {
	raw, err := c.do(ctx, request{
		op:     "update question " + strconv.FormatInt(id, 10),
		method: http.MethodPatch,
		path:   idPath("/questions", id),
		body:   in,
		access: authenticated,
	})
	if err != nil {
		return 0, err
	}
	return mapper.DecodeUpdated("PATCH /questions/{id}", raw)
}

// DeleteQuestion ignores the response body; the backend echoes the deleted
// question in varying shapes.
func (c *Client) DeleteQuestion(ctx context.Context, id int64) error {
	_, err := c.do(ctx, request{
		op:     "delete question " + strconv.FormatInt(id, 10),
		method: http.MethodDelete,
		path:   idPath("/questions", id),
		access: authenticated,
	})
	return err
}

func (c *Client) CreateAnswer(ctx context.Context, in model.AnswerInput) (model.Answer, error) {
	raw, err := c.do(ctx, request{
		op:     "create answer",
		method: http.MethodPost,
		path:   "/answers",
		body:   in,
		access: authenticated,
	})
	if err != nil {
		return model.Answer{}, err
	}
	return mapper.DecodeAnswer(raw)
}

// SetAnswerState marks an answer correct or incorrect.
func (c *Client) SetAnswerState(ctx context.Context, answerID int64, correct bool) error {
	state := "incorrect"
	if correct {
		state = "correct"
	}
	_, err := c.do(ctx, request{
		op:     "update answer state",
		method: http.MethodPut,
		path:   idPath("/answers", answerID, "state", state),
		access: authenticated,
	})
	return err
}
