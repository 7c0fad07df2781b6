package apitest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippethub/internal/model"
)

const defaultLimit = 20

// pageParams reads ?page=&limit= with the backend's defaults.
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

// pathID parses the {id} URL parameter, answering 400 when it is not a number.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be a number")
		return 0, false
	}
	return id, true
}

func currentUser(r *http.Request) int64 {
	id, _ := userIDFromContext(r.Context())
	return id
}

// =========================================================================
// SNIPPETS
// =========================================================================

func (s *Server) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	var userID int64
	if v := r.URL.Query().Get("userId"); v != "" {
		userID, _ = strconv.ParseInt(v, 10, 64)
	}

	s.mu.Lock()
	items := make([]any, 0, len(s.snippets))
	for _, id := range sortedIDs(s.snippets) {
		sn := s.snippets[id]
		if userID != 0 && sn.authorID != userID {
			continue
		}
		items = append(items, s.wireSnippetLocked(sn))
	}
	s.mu.Unlock()

	// list bodies are never enveloped; they already carry a "data" key
	writeJSON(w, http.StatusOK, wirePage("/snippets", items, page, limit))
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, Languages)
}

func (s *Server) handleGetSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	sn, found := s.snippets[id]
	var body map[string]any
	if found {
		body = s.wireSnippetLocked(sn)
	}
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "snippet not found with id "+strconv.FormatInt(id, 10))
		return
	}
	s.reply(w, http.StatusOK, body)
}

type snippetBody struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

func (in snippetBody) problem() string {
	switch {
	case strings.TrimSpace(in.Code) == "":
		return "code must not be empty"
	case strings.TrimSpace(in.Language) == "":
		return "language must not be empty"
	}
	return ""
}

func (s *Server) handleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	var in snippetBody
	if !decodeBody(w, r, &in) {
		return
	}
	if msg := in.problem(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	sn := &snippet{
		id:       s.nextIDLocked(),
		authorID: currentUser(r),
		language: in.Language,
		code:     in.Code,
		marks:    make(map[int64]model.MarkKind),
	}
	s.snippets[sn.id] = sn
	body := s.wireSnippetLocked(sn)
	s.mu.Unlock()

	s.reply(w, http.StatusCreated, body)
}

// ownedSnippetLocked looks up a snippet the current user may change and
// writes the error response when there is none.
func (s *Server) ownedSnippetLocked(w http.ResponseWriter, r *http.Request, id int64) (*snippet, bool) {
	sn, ok := s.snippets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "snippet not found with id "+strconv.FormatInt(id, 10))
		return nil, false
	}
	if sn.authorID != currentUser(r) {
		writeError(w, http.StatusForbidden, "you can only change your own snippets")
		return nil, false
	}
	return sn, true
}

func (s *Server) handleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in snippetBody
	if !decodeBody(w, r, &in) {
		return
	}
	if msg := in.problem(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.ownedSnippetLocked(w, r, id)
	if !ok {
		return
	}
	sn.language, sn.code = in.Language, in.Code
	s.replyLocked(w, http.StatusOK, map[string]any{"updatedCount": 1})
}

func (s *Server) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.ownedSnippetLocked(w, r, id)
	if !ok {
		return
	}
	body := s.wireSnippetLocked(sn)
	delete(s.snippets, id)
	s.replyLocked(w, http.StatusOK, body)
}

func (s *Server) handleMarkSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in struct {
		Mark model.MarkKind `json:"mark"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if !in.Mark.Valid() {
		writeError(w, http.StatusBadRequest, `mark must be "like" or "dislike"`)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sn, found := s.snippets[id]
	if !found {
		writeError(w, http.StatusNotFound, "snippet not found with id "+strconv.FormatInt(id, 10))
		return
	}
	sn.marks[currentUser(r)] = in.Mark
	s.replyLocked(w, http.StatusCreated, map[string]any{"success": true})
}

// replyLocked is reply for handlers that already hold mu.
func (s *Server) replyLocked(w http.ResponseWriter, status int, data any) {
	if s.envelope {
		data = map[string]any{"data": data}
	}
	writeJSON(w, status, data)
}

// =========================================================================
// QUESTIONS AND ANSWERS
// =========================================================================

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	s.mu.Lock()
	items := make([]any, 0, len(s.questions))
	for _, id := range sortedIDs(s.questions) {
		items = append(items, s.wireQuestionLocked(s.questions[id]))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, wirePage("/questions", items, page, limit))
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q, found := s.questions[id]
	if !found {
		writeError(w, http.StatusNotFound, "question not found with id "+strconv.FormatInt(id, 10))
		return
	}
	s.replyLocked(w, http.StatusOK, s.wireQuestionLocked(q))
}

type questionBody struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	AttachedCode string `json:"attachedCode"`
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in questionBody
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeError(w, http.StatusBadRequest, "title must not be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	q := &question{
		id:          s.nextIDLocked(),
		authorID:    currentUser(r),
		title:       in.Title,
		description: in.Description,
		code:        in.AttachedCode,
		createdAt:   now,
		updatedAt:   now,
	}
	s.questions[q.id] = q
	s.replyLocked(w, http.StatusCreated, s.wireQuestionLocked(q))
}

func (s *Server) ownedQuestionLocked(w http.ResponseWriter, r *http.Request, id int64) (*question, bool) {
	q, ok := s.questions[id]
	if !ok {
		writeError(w, http.StatusNotFound, "question not found with id "+strconv.FormatInt(id, 10))
		return nil, false
	}
	if q.authorID != currentUser(r) {
		writeError(w, http.StatusForbidden, "you can only change your own questions")
		return nil, false
	}
	return q, true
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in questionBody
	if !decodeBody(w, r, &in) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.ownedQuestionLocked(w, r, id)
	if !ok {
		return
	}
	if in.Title != "" {
		q.title = in.Title
	}
	q.description, q.code = in.Description, in.AttachedCode
	q.updatedAt = time.Now().UTC()
	s.replyLocked(w, http.StatusOK, map[string]any{"updatedCount": 1})
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.ownedQuestionLocked(w, r, id)
	if !ok {
		return
	}
	body := s.wireQuestionLocked(q)
	for _, aid := range q.answerIDs {
		delete(s.answers, aid)
	}
	delete(s.questions, id)
	s.replyLocked(w, http.StatusOK, body)
}

func (s *Server) handleCreateAnswer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content    string `json:"content"`
		QuestionID int64  `json:"questionId"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		writeError(w, http.StatusBadRequest, "content must not be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q, found := s.questions[in.QuestionID]
	if !found {
		writeError(w, http.StatusNotFound, "question not found with id "+strconv.FormatInt(in.QuestionID, 10))
		return
	}
	a := &answer{id: s.nextIDLocked(), questionID: q.id, authorID: currentUser(r), content: in.Content}
	s.answers[a.id] = a
	q.answerIDs = append(q.answerIDs, a.id)
	s.replyLocked(w, http.StatusCreated, s.wireAnswerLocked(a))
}

// handleAnswerState marks an answer correct or incorrect. At most one answer
// per question is correct.
func (s *Server) handleAnswerState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var correct bool
	switch chi.URLParam(r, "state") {
	case "correct":
		correct = true
	case "incorrect":
	default:
		writeError(w, http.StatusBadRequest, `state must be "correct" or "incorrect"`)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, found := s.answers[id]
	if !found {
		writeError(w, http.StatusNotFound, "answer not found with id "+strconv.FormatInt(id, 10))
		return
	}
	if correct {
		for _, other := range s.questions[a.questionID].answerIDs {
			s.answers[other].correct = false
		}
	}
	a.correct = correct
	s.replyLocked(w, http.StatusOK, map[string]any{"success": true})
}

// =========================================================================
// USERS
// =========================================================================

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	search := strings.ToLower(r.URL.Query().Get("search"))

	s.mu.Lock()
	items := make([]any, 0, len(s.users))
	for _, id := range sortedIDs(s.users) {
		u := s.users[id]
		if search != "" && !strings.Contains(strings.ToLower(u.username), search) {
			continue
		}
		items = append(items, wireUser(u))
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, wirePage("/users", items, page, limit))
}

// handleGetUser nests the user under a "user" key, as the backend does for
// this endpoint only.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[id]
	if !found {
		writeError(w, http.StatusNotFound, "user not found with id "+strconv.FormatInt(id, 10))
		return
	}
	s.replyLocked(w, http.StatusOK, map[string]any{"user": wireUser(u)})
}

func (s *Server) handleStatistic(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, found := s.users[id]
	if !found {
		writeError(w, http.StatusNotFound, "user not found with id "+strconv.FormatInt(id, 10))
		return
	}
	body := wireUser(u)
	body["statistic"] = s.wireStatisticLocked(id)
	s.replyLocked(w, http.StatusOK, body)
}

// =========================================================================
// ACCOUNT
// =========================================================================

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyLocked(w, http.StatusOK, wireUser(s.users[currentUser(r)]))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
	}
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Username) == "" {
		writeError(w, http.StatusBadRequest, "username must not be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTakenLocked(in.Username, currentUser(r)) {
		writeError(w, http.StatusConflict, "username is already taken")
		return
	}
	u := s.users[currentUser(r)]
	u.username = in.Username
	s.replyLocked(w, http.StatusOK, wireUser(u))
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.users, currentUser(r))
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if !decodeBody(w, r, &in) {
		return
	}

	if len(in.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "new password must be at least 6 characters")
		return
	}
	hash, err := s.passwords.Hash(in.NewPassword)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[currentUser(r)]
	if s.passwords.Verify(u.password, in.OldPassword) != nil {
		writeError(w, http.StatusBadRequest, "old password is incorrect")
		return
	}
	u.password = hash
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) usernameTakenLocked(username string, except int64) bool {
	for id, u := range s.users {
		if id != except && strings.EqualFold(u.username, username) {
			return true
		}
	}
	return false
}

// =========================================================================
// AUTH
// =========================================================================

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeBody(w, r, &in) {
		return
	}

	s.mu.Lock()
	var found *user
	for _, u := range s.users {
		if u.username == in.Username && s.passwords.Verify(u.password, in.Password) == nil {
			found = u
			break
		}
	}
	var body map[string]any
	if found != nil {
		body = wireUser(found)
	}
	s.mu.Unlock()

	if found == nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := s.tokens.Generate(found.id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.reply(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: s.cookieName, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTakenLocked(in.Username, 0) {
		writeError(w, http.StatusConflict, "username is already taken")
		return
	}
	u := &user{id: s.nextIDLocked(), username: in.Username, password: hash, role: "user"}
	s.users[u.id] = u
	s.replyLocked(w, http.StatusCreated, wireUser(u))
}
