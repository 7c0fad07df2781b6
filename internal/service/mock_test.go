package service

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
)

// =========================================================================
// MOCK BACKEND
// =========================================================================
//
// fakeAPI implements every service interface in memory. Each method counts
// its calls, returns errs[method] when set, and runs hooks[method] first so
// a test can look at the cache while a write is in flight.

type fakeAPI struct {
	mu        sync.Mutex
	calls     map[string]int
	errs      map[string]error
	hooks     map[string]func()
	snippets  map[int64]model.Snippet
	questions map[int64]model.Question
	user      model.User
	cookies   []*http.Cookie
	languages []string
	nextID    int64
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls:     make(map[string]int),
		errs:      make(map[string]error),
		hooks:     make(map[string]func()),
		snippets:  make(map[int64]model.Snippet),
		questions: make(map[int64]model.Question),
		user:      model.User{ID: 1, Username: "alice", Role: "user"},
		languages: []string{"go", "python"},
		nextID:    100,
	}
}

// enter records a call, runs the hook outside the lock and then returns
// the configured error, so a hook may change it.
func (f *fakeAPI) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	hook := f.hooks[method]
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[method]
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeAPI) fail(method string, err error) {
	f.mu.Lock()
	f.errs[method] = err
	f.mu.Unlock()
}

func (f *fakeAPI) hook(method string, fn func()) {
	f.mu.Lock()
	f.hooks[method] = fn
	f.mu.Unlock()
}

func (f *fakeAPI) putSnippet(sn model.Snippet) {
	f.mu.Lock()
	f.snippets[sn.ID] = sn
	f.mu.Unlock()
}

func (f *fakeAPI) putQuestion(q model.Question) {
	f.mu.Lock()
	f.questions[q.ID] = q
	f.mu.Unlock()
}

// --- snippets ---

func (f *fakeAPI) ListSnippets(_ context.Context, page int, _ model.SnippetFilters) (model.Page[model.Snippet], error) {
	if err := f.enter("ListSnippets"); err != nil {
		return model.Page[model.Snippet]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]model.Snippet, 0, len(f.snippets))
	for id := int64(0); id <= f.nextID; id++ {
		if sn, ok := f.snippets[id]; ok {
			items = append(items, sn)
		}
	}
	return model.Page[model.Snippet]{Items: items, Page: page, PageSize: 20, Total: len(items)}, nil
}

func (f *fakeAPI) GetSnippet(_ context.Context, id int64) (model.Snippet, error) {
	if err := f.enter("GetSnippet"); err != nil {
		return model.Snippet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sn, ok := f.snippets[id]
	if !ok {
		return model.Snippet{}, apperror.StatusFailure("load snippet", http.StatusNotFound, "")
	}
	return sn, nil
}

func (f *fakeAPI) CreateSnippet(_ context.Context, in model.SnippetInput) (model.Snippet, error) {
	if err := f.enter("CreateSnippet"); err != nil {
		return model.Snippet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	sn := model.Snippet{ID: f.nextID, Language: in.Language, Code: in.Code, Author: model.Author{ID: f.user.ID, Username: f.user.Username}}
	f.snippets[sn.ID] = sn
	return sn, nil
}

func (f *fakeAPI) UpdateSnippet(_ context.Context, id int64, in model.SnippetInput) (int64, error) {
	if err := f.enter("UpdateSnippet"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sn := f.snippets[id]
	sn.Language, sn.Code = in.Language, in.Code
	f.snippets[id] = sn
	return 1, nil
}

func (f *fakeAPI) DeleteSnippet(_ context.Context, id int64) (model.Snippet, error) {
	if err := f.enter("DeleteSnippet"); err != nil {
		return model.Snippet{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sn := f.snippets[id]
	delete(f.snippets, id)
	return sn, nil
}

func (f *fakeAPI) MarkSnippet(_ context.Context, id int64, kind model.MarkKind) error {
	if err := f.enter("MarkSnippet"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snippets[id] = f.snippets[id].WithMark(kind)
	return nil
}

func (f *fakeAPI) Languages(context.Context) ([]string, error) {
	if err := f.enter("Languages"); err != nil {
		return nil, err
	}
	return f.languages, nil
}

// --- questions ---

func (f *fakeAPI) ListQuestions(_ context.Context, page int, _ model.QuestionFilters) (model.Page[model.Question], error) {
	if err := f.enter("ListQuestions"); err != nil {
		return model.Page[model.Question]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]model.Question, 0, len(f.questions))
	for id := int64(0); id <= f.nextID; id++ {
		if q, ok := f.questions[id]; ok {
			items = append(items, q)
		}
	}
	return model.Page[model.Question]{Items: items, Page: page, PageSize: 20, Total: len(items)}, nil
}

func (f *fakeAPI) GetQuestion(_ context.Context, id int64) (model.Question, error) {
	if err := f.enter("GetQuestion"); err != nil {
		return model.Question{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return model.Question{}, apperror.StatusFailure("load question", http.StatusNotFound, "")
	}
	return q, nil
}

func (f *fakeAPI) CreateQuestion(_ context.Context, in model.QuestionInput) (model.Question, error) {
	if err := f.enter("CreateQuestion"); err != nil {
		return model.Question{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	q := model.Question{ID: f.nextID, Title: in.Title, Body: in.Description, Code: in.AttachedCode}
	f.questions[q.ID] = q
	return q, nil
}

func (f *fakeAPI) UpdateQuestion(_ context.Context, id int64, in model.QuestionInput) (int64, error) {
	if err := f.enter("UpdateQuestion"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.questions[id]
	q.Title = in.Title
	f.questions[id] = q
	return 1, nil
}

func (f *fakeAPI) DeleteQuestion(_ context.Context, id int64) error {
	if err := f.enter("DeleteQuestion"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.questions, id)
	return nil
}

func (f *fakeAPI) CreateAnswer(_ context.Context, in model.AnswerInput) (model.Answer, error) {
	if err := f.enter("CreateAnswer"); err != nil {
		return model.Answer{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	a := model.Answer{ID: f.nextID, Content: in.Content, Author: model.Author{ID: f.user.ID, Username: f.user.Username}}
	f.questions[in.QuestionID] = f.questions[in.QuestionID].WithAnswer(a)
	return a, nil
}

func (f *fakeAPI) SetAnswerState(_ context.Context, answerID int64, correct bool) error {
	if err := f.enter("SetAnswerState"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, q := range f.questions {
		for _, a := range q.Answers {
			if a.ID == answerID {
				f.questions[id] = q.WithAnswerState(answerID, correct)
				return nil
			}
		}
	}
	return nil
}

// --- users ---

func (f *fakeAPI) ListUsers(_ context.Context, page int, _ model.UserFilters) (model.Page[model.User], error) {
	if err := f.enter("ListUsers"); err != nil {
		return model.Page[model.User]{}, err
	}
	return model.Page[model.User]{Items: []model.User{f.user}, Page: page, PageSize: 20, Total: 1}, nil
}

func (f *fakeAPI) GetUser(_ context.Context, id int64) (model.User, error) {
	if err := f.enter("GetUser"); err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Username: "user"}, nil
}

func (f *fakeAPI) UserStatistic(_ context.Context, id int64) (model.UserStatistic, error) {
	if err := f.enter("UserStatistic"); err != nil {
		return model.UserStatistic{}, err
	}
	return model.UserStatistic{UserID: id}, nil
}

func (f *fakeAPI) Me(context.Context) (model.User, error) {
	if err := f.enter("Me"); err != nil {
		return model.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, nil
}

// --- auth ---

func (f *fakeAPI) Login(_ context.Context, creds model.Credentials) (model.User, error) {
	if err := f.enter("Login"); err != nil {
		return model.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = []*http.Cookie{{Name: "token", Value: "opaque-" + creds.Username}}
	return f.user, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	return f.enter("Logout")
}

func (f *fakeAPI) Register(context.Context, model.Credentials) error {
	return f.enter("Register")
}

func (f *fakeAPI) UpdateUsername(_ context.Context, username string) (model.User, error) {
	if err := f.enter("UpdateUsername"); err != nil {
		return model.User{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user.Username = username
	return f.user, nil
}

func (f *fakeAPI) UpdatePassword(context.Context, model.PasswordChange) error {
	return f.enter("UpdatePassword")
}

func (f *fakeAPI) DeleteAccount(context.Context) error {
	return f.enter("DeleteAccount")
}

func (f *fakeAPI) Cookies() []*http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies
}

func (f *fakeAPI) SetCookies(cookies []*http.Cookie) {
	f.mu.Lock()
	f.cookies = cookies
	f.mu.Unlock()
}

func (f *fakeAPI) ClearCookies() {
	f.mu.Lock()
	f.cookies = nil
	f.mu.Unlock()
}

var (
	_ SnippetAPI  = (*fakeAPI)(nil)
	_ QuestionAPI = (*fakeAPI)(nil)
	_ UserAPI     = (*fakeAPI)(nil)
	_ AuthAPI     = (*fakeAPI)(nil)
)

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestCache(t *testing.T) *querycache.Cache {
	t.Helper()
	c := querycache.New(querycache.Options{GCTime: -1, RetryDelay: time.Millisecond}, nil)
	t.Cleanup(c.Clear)
	return c
}

// observe keeps key observed for the rest of the test and waits for its
// first successful value.
func observe(t *testing.T, c *querycache.Cache, key querycache.Key, start func(querycache.Listener) func()) {
	t.Helper()
	stop := start(func(querycache.Snapshot) {})
	t.Cleanup(stop)
	waitFresh(t, c, key)
}

func waitFresh(t *testing.T, c *querycache.Cache, key querycache.Key) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := c.Snapshot(key); ok && snap.Status == querycache.StatusSuccess && !snap.Fetching {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("key %s never became fresh", key)
}
