package apitest

import (
	"sort"
	"strconv"
	"time"

	"github.com/sakif/snippethub/internal/model"
)

type user struct {
	id       int64
	username string
	password string // bcrypt hash
	role     string
}

type comment struct {
	id        int64
	authorID  int64
	body      string
	createdAt time.Time
	updatedAt time.Time
}

type snippet struct {
	id       int64
	authorID int64
	language string
	code     string
	marks    map[int64]model.MarkKind // by user id
	comments []*comment
}

type question struct {
	id          int64
	authorID    int64
	title       string
	description string
	code        string
	answerIDs   []int64
	createdAt   time.Time
	updatedAt   time.Time
}

type answer struct {
	id         int64
	questionID int64
	authorID   int64
	content    string
	correct    bool
}

// Languages are the values GET /snippets/languages returns.
var Languages = []string{"go", "javascript", "python", "typescript"}

// =========================================================================
// SEEDING
// =========================================================================

// nextIDLocked hands out ids from one sequence shared by every entity, so
// an id never means two things in a test.
func (s *Server) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

// SeedUser creates an account and returns it. It panics if password cannot
// be hashed, which only happens past bcrypt's length limit.
func (s *Server) SeedUser(username, password string) model.User {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		panic("apitest: " + err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{id: s.nextIDLocked(), username: username, password: hash, role: "user"}
	s.users[u.id] = u
	return model.User{ID: u.id, Username: u.username, Role: u.role}
}

// SeedSnippet creates a snippet authored by authorID and returns its id.
func (s *Server) SeedSnippet(authorID int64, language, code string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn := &snippet{
		id:       s.nextIDLocked(),
		authorID: authorID,
		language: language,
		code:     code,
		marks:    make(map[int64]model.MarkKind),
	}
	s.snippets[sn.id] = sn
	return sn.id
}

// SeedMark records userID's mark on a snippet.
func (s *Server) SeedMark(snippetID, userID int64, kind model.MarkKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn, ok := s.snippets[snippetID]; ok {
		sn.marks[userID] = kind
	}
}

// SeedComment adds a comment to a snippet's thread and returns its id.
func (s *Server) SeedComment(snippetID, authorID int64, body string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.snippets[snippetID]
	if !ok {
		return 0
	}
	now := time.Now().UTC()
	c := &comment{id: s.nextIDLocked(), authorID: authorID, body: body, createdAt: now, updatedAt: now}
	sn.comments = append(sn.comments, c)
	return c.id
}

// SeedQuestion creates a question and returns its id.
func (s *Server) SeedQuestion(authorID int64, title, description string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	q := &question{
		id:          s.nextIDLocked(),
		authorID:    authorID,
		title:       title,
		description: description,
		createdAt:   now,
		updatedAt:   now,
	}
	s.questions[q.id] = q
	return q.id
}

// SeedAnswer adds an answer to a question and returns its id.
func (s *Server) SeedAnswer(questionID, authorID int64, content string, correct bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.questions[questionID]
	if !ok {
		return 0
	}
	a := &answer{id: s.nextIDLocked(), questionID: questionID, authorID: authorID, content: content, correct: correct}
	s.answers[a.id] = a
	q.answerIDs = append(q.answerIDs, a.id)
	return a.id
}

// Snippet returns the stored state of a snippet as the client would map it.
func (s *Server) Snippet(id int64) (model.Snippet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.snippets[id]
	if !ok {
		return model.Snippet{}, false
	}
	likes, dislikes := sn.counts()
	return model.Snippet{
		ID:            sn.id,
		Language:      sn.language,
		Code:          sn.code,
		Author:        s.authorLocked(sn.authorID),
		Likes:         likes,
		Dislikes:      dislikes,
		CommentsCount: len(sn.comments),
	}, true
}

// AnswerCorrect reports the stored correctness of an answer.
func (s *Server) AnswerCorrect(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[id]
	return ok && a.correct
}

// =========================================================================
// WIRE ENCODING
// =========================================================================
//
// The encoders produce the backend's wire shapes, quirks included: snippet
// authors carry string ids, likes are a marks[] array, questions say
// isResolved and description, statistics use a mix of field spellings.

func (sn *snippet) counts() (likes, dislikes int) {
	for _, m := range sn.marks {
		switch m {
		case model.MarkLike:
			likes++
		case model.MarkDislike:
			dislikes++
		}
	}
	return likes, dislikes
}

func (s *Server) authorLocked(id int64) model.Author {
	u, ok := s.users[id]
	if !ok {
		return model.Author{}
	}
	return model.Author{ID: u.id, Username: u.username, Role: u.role}
}

func wireUser(u *user) map[string]any {
	return map[string]any{"id": u.id, "username": u.username, "role": u.role}
}

// wireUserRef returns nil for a deleted author, which the client drops.
func (s *Server) wireUserRefLocked(id int64, stringID bool) any {
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	w := wireUser(u)
	if stringID {
		w["id"] = strconv.FormatInt(u.id, 10)
	}
	return w
}

func (s *Server) wireSnippetLocked(sn *snippet) map[string]any {
	userIDs := make([]int64, 0, len(sn.marks))
	for uid := range sn.marks {
		userIDs = append(userIDs, uid)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	marks := make([]any, 0, len(userIDs))
	for _, uid := range userIDs {
		marks = append(marks, map[string]any{"type": string(sn.marks[uid]), "userId": uid})
	}

	comments := make([]any, 0, len(sn.comments))
	for _, c := range sn.comments {
		comments = append(comments, map[string]any{
			"id":        c.id,
			"content":   c.body,
			"user":      s.wireUserRefLocked(c.authorID, false),
			"createdAt": c.createdAt.Format(time.RFC3339),
		})
	}

	author := s.wireUserRefLocked(sn.authorID, true)
	if author == nil {
		author = map[string]any{"id": strconv.FormatInt(sn.authorID, 10), "username": "deleted", "role": "user"}
	}
	return map[string]any{
		"id":       strconv.FormatInt(sn.id, 10),
		"language": sn.language,
		"code":     sn.code,
		"user":     author,
		"marks":    marks,
		"comments": comments,
	}
}

func (s *Server) wireAnswerLocked(a *answer) map[string]any {
	return map[string]any{
		"id":        a.id,
		"content":   a.content,
		"isCorrect": a.correct,
		"user":      s.wireUserRefLocked(a.authorID, false),
	}
}

func (s *Server) wireQuestionLocked(q *question) map[string]any {
	answers := make([]any, 0, len(q.answerIDs))
	resolved := false
	for _, id := range q.answerIDs {
		a := s.answers[id]
		if a.correct {
			resolved = true
		}
		answers = append(answers, s.wireAnswerLocked(a))
	}
	return map[string]any{
		"id":           q.id,
		"title":        q.title,
		"description":  q.description,
		"attachedCode": q.code,
		"isResolved":   resolved,
		"answers":      answers,
		"user":         s.wireUserRefLocked(q.authorID, false),
		"createdAt":    q.createdAt.Format(time.RFC3339),
		"updatedAt":    q.updatedAt.Format(time.RFC3339),
	}
}

func (s *Server) wireStatisticLocked(userID int64) map[string]any {
	var snippets, likes, dislikes, comments, questions, correct, regular int
	for _, sn := range s.snippets {
		if sn.authorID == userID {
			snippets++
			l, d := sn.counts()
			likes += l
			dislikes += d
		}
		for _, c := range sn.comments {
			if c.authorID == userID {
				comments++
			}
		}
	}
	for _, q := range s.questions {
		if q.authorID == userID {
			questions++
		}
	}
	for _, a := range s.answers {
		if a.authorID != userID {
			continue
		}
		if a.correct {
			correct++
		} else {
			regular++
		}
	}

	// answersCount is left out on purpose: clients derive it.
	return map[string]any{
		"snippetsCount":       snippets,
		"questions":           questions,
		"likesCount":          likes,
		"dislikes":            dislikes,
		"commentsCount":       comments,
		"correctAnswersCount": correct,
		"regularAnswersCount": regular,
		"rating":              likes - dislikes,
	}
}

// wirePage slices items into the {data, meta, links} list shape.
func wirePage(path string, items []any, page, limit int) map[string]any {
	total := len(items)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	var next any
	if page < totalPages {
		next = path + "?page=" + strconv.Itoa(page+1) + "&limit=" + strconv.Itoa(limit)
	}
	return map[string]any{
		"data": items[start:end],
		"meta": map[string]any{
			"itemsPerPage": limit,
			"totalItems":   total,
			"currentPage":  page,
			"totalPages":   totalPages,
		},
		"links": map[string]any{"next": next},
	}
}

func sortedIDs[T any](m map[int64]T) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
