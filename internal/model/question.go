package model

// Question is a Q&A thread. Resolved is true iff at least one answer is
// marked correct.
type Question struct {
	ID           int64    `json:"id"`
	Title        string   `json:"title"`
	Body         string   `json:"body,omitempty"`
	Code         string   `json:"code,omitempty"`
	Resolved     bool     `json:"resolved"`
	Answers      []Answer `json:"answers"`
	AnswersCount int      `json:"answersCount"`
	Author       Author   `json:"author"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

type Answer struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	IsCorrect bool   `json:"isCorrect"`
	Author    Author `json:"author"`
}

// UnknownAuthor stands in for a question whose author could not be resolved.
var UnknownAuthor = Author{ID: 0, Username: "unknown"}

// WithAnswerState returns a copy of q where answer answerID has the given
// correctness. Marking an answer correct clears every other correct flag.
// The answers slice is copied, so q itself is left untouched.
func (q Question) WithAnswerState(answerID int64, correct bool) Question {
	answers := make([]Answer, len(q.Answers))
	copy(answers, q.Answers)

	for i := range answers {
		switch {
		case answers[i].ID == answerID:
			answers[i].IsCorrect = correct
		case correct:
			answers[i].IsCorrect = false
		}
	}

	q.Answers = answers
	q.Resolved = anyCorrect(answers)
	return q
}

// WithAnswer returns a copy of q with a appended to its answers.
func (q Question) WithAnswer(a Answer) Question {
	answers := make([]Answer, 0, len(q.Answers)+1)
	answers = append(answers, q.Answers...)
	answers = append(answers, a)

	q.Answers = answers
	q.AnswersCount++
	q.Resolved = anyCorrect(answers)
	return q
}

func anyCorrect(answers []Answer) bool {
	for _, a := range answers {
		if a.IsCorrect {
			return true
		}
	}
	return false
}

// QuestionInput is the body of POST /questions and PATCH /questions/{id}.
type QuestionInput struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	AttachedCode string `json:"attachedCode,omitempty"`
}

// AnswerInput is the body of POST /answers.
type AnswerInput struct {
	Content    string `json:"content"`
	QuestionID int64  `json:"questionId"`
}

type QuestionFilters struct {
	Limit int `json:"limit"`
}
