package service

import (
	"context"
	"log/slog"

	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/mutation"
	"github.com/sakif/snippethub/internal/querycache"
)

// QuestionService reads and writes questions and their answers.
type QuestionService struct {
	api    QuestionAPI
	cache  *querycache.Cache
	logger *slog.Logger

	create     *mutation.Mutation[model.QuestionInput, model.Question]
	update     *mutation.Mutation[questionEdit, int64]
	remove     *mutation.Mutation[int64, struct{}]
	answer     *mutation.Mutation[model.AnswerInput, model.Answer]
	markAnswer *mutation.Mutation[answerState, struct{}]
}

type questionEdit struct {
	id int64
	in model.QuestionInput
}

type answerState struct {
	questionID int64
	answerID   int64
	correct    bool
}

func NewQuestionService(client QuestionAPI, cache *querycache.Cache, logger *slog.Logger) *QuestionService {
	s := &QuestionService{api: client, cache: cache, logger: orDiscard(logger)}

	s.create = mutation.New(cache, s.logger, mutation.Definition[model.QuestionInput, model.Question]{
		Name: "create question",
		Do: func(ctx context.Context, in model.QuestionInput) (model.Question, error) {
			return s.api.CreateQuestion(ctx, in)
		},
		OnSuccess: func(_ context.Context, _ model.QuestionInput, q model.Question) {
			querycache.SetData(s.cache, QuestionKey(q.ID), q)
		},
		Invalidate: func(model.QuestionInput, model.Question) []querycache.Key {
			return []querycache.Key{QuestionListsKey()}
		},
	})

	s.update = mutation.New(cache, s.logger, mutation.Definition[questionEdit, int64]{
		Name: "update question",
		Do: func(ctx context.Context, v questionEdit) (int64, error) {
			return s.api.UpdateQuestion(ctx, v.id, v.in)
		},
		Invalidate: func(v questionEdit, _ int64) []querycache.Key {
			return []querycache.Key{QuestionKey(v.id), QuestionListsKey()}
		},
	})

	s.remove = mutation.New(cache, s.logger, mutation.Definition[int64, struct{}]{
		Name: "delete question",
		Do: func(ctx context.Context, id int64) (struct{}, error) {
			return struct{}{}, s.api.DeleteQuestion(ctx, id)
		},
		OnSuccess: func(_ context.Context, id int64, _ struct{}) {
			s.cache.Remove(QuestionKey(id))
		},
		Invalidate: func(int64, struct{}) []querycache.Key {
			return []querycache.Key{QuestionsKey()}
		},
	})

	s.answer = mutation.New(cache, s.logger, mutation.Definition[model.AnswerInput, model.Answer]{
		Name: "create answer",
		Do: func(ctx context.Context, in model.AnswerInput) (model.Answer, error) {
			return s.api.CreateAnswer(ctx, in)
		},
		OnSuccess: func(_ context.Context, in model.AnswerInput, a model.Answer) {
			querycache.UpdateData(s.cache, QuestionKey(in.QuestionID), func(q model.Question) model.Question {
				return q.WithAnswer(a)
			})
		},
		Invalidate: func(in model.AnswerInput, _ model.Answer) []querycache.Key {
			return []querycache.Key{QuestionKey(in.QuestionID), QuestionListsKey()}
		},
	})

	s.markAnswer = mutation.New(cache, s.logger, mutation.Definition[answerState, struct{}]{
		Name: "mark answer",
		Do: func(ctx context.Context, v answerState) (struct{}, error) {
			return struct{}{}, s.api.SetAnswerState(ctx, v.answerID, v.correct)
		},
		// The whole answer set is replaced in one write, so an abort
		// restores every answer's flag together.
		Optimistic: func(tx *mutation.Transaction, v answerState) {
			mutation.Patch(tx, QuestionKey(v.questionID), func(q model.Question) model.Question {
				return q.WithAnswerState(v.answerID, v.correct)
			})
		},
		Invalidate: func(v answerState, _ struct{}) []querycache.Key {
			return []querycache.Key{QuestionKey(v.questionID), QuestionListsKey()}
		},
	})

	return s
}

// =========================================================================
// READS
// =========================================================================

func (s *QuestionService) List(f model.QuestionFilters) *querycache.Infinite[model.Question] {
	return querycache.NewInfinite(s.cache, QuestionListKey(f), func(ctx context.Context, page int) (model.Page[model.Question], error) {
		return s.api.ListQuestions(ctx, page, f)
	})
}

func (s *QuestionService) Get(ctx context.Context, id int64) (model.Question, error) {
	return querycache.Query(ctx, s.cache, QuestionKey(id), s.fetchQuestion(id))
}

func (s *QuestionService) Observe(id int64, listener querycache.Listener) (stop func()) {
	return s.cache.Observe(QuestionKey(id), querycache.Typed(s.fetchQuestion(id)), listener)
}

func (s *QuestionService) fetchQuestion(id int64) func(context.Context) (model.Question, error) {
	return func(ctx context.Context) (model.Question, error) {
		return s.api.GetQuestion(ctx, id)
	}
}

// =========================================================================
// WRITES
// =========================================================================

func (s *QuestionService) Create(ctx context.Context, in model.QuestionInput) (model.Question, error) {
	if err := required("title", in.Title, "title must not be empty"); err != nil {
		return model.Question{}, err
	}
	q, err := s.create.Run(ctx, in)
	if err != nil {
		return model.Question{}, err
	}
	s.logger.Info("question created", slog.Int64("id", q.ID))
	return q, nil
}

func (s *QuestionService) Update(ctx context.Context, id int64, in model.QuestionInput) error {
	if err := required("title", in.Title, "title must not be empty"); err != nil {
		return err
	}
	_, err := s.update.Run(ctx, questionEdit{id: id, in: in})
	return err
}

func (s *QuestionService) Delete(ctx context.Context, id int64) error {
	if _, err := s.remove.Run(ctx, id); err != nil {
		return err
	}
	s.logger.Info("question deleted", slog.Int64("id", id))
	return nil
}

// Answer posts an answer and appends it to the cached question right away.
func (s *QuestionService) Answer(ctx context.Context, in model.AnswerInput) (model.Answer, error) {
	if err := required("content", in.Content, "answer must not be empty"); err != nil {
		return model.Answer{}, err
	}
	return s.answer.Run(ctx, in)
}

// MarkAnswer sets the correctness of one answer of a question. Marking an
// answer correct unmarks the others. The cached question shows the result
// at once; a failure restores every answer as it was.
func (s *QuestionService) MarkAnswer(ctx context.Context, questionID, answerID int64, correct bool) error {
	_, err := s.markAnswer.Run(ctx, answerState{questionID: questionID, answerID: answerID, correct: correct})
	return err
}

// MarkAnswerState reports the state of the most recent MarkAnswer call.
func (s *QuestionService) MarkAnswerState() mutation.State {
	return s.markAnswer.State()
}
