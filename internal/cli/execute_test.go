package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/apitest"
	"github.com/sakif/snippethub/internal/model"
)

// backend points the configuration at a fresh test server and a temporary
// session database shared by every run in the test.
func backend(t *testing.T) *apitest.Server {
	t.Helper()
	srv := apitest.New(t)
	t.Setenv("SNIPPETHUB_API_URL", srv.URL())
	t.Setenv("SNIPPETHUB_WS_URL", srv.WSURL())
	t.Setenv("SNIPPETHUB_DB_PATH", filepath.Join(t.TempDir(), "session.db"))
	t.Setenv("SNIPPETHUB_LOG_LEVEL", "error")
	return srv
}

type result struct {
	code   int
	stdout string
	stderr string
}

func run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), append([]string{"--env-file", ""}, args...), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func login(t *testing.T, username, password string) {
	t.Helper()
	res := run(t, "login", "-u", username, "-p", password)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
}

func TestExecute_LoginPersistsAcrossRuns(t *testing.T) {
	srv := backend(t)
	srv.SeedUser("alice", "secret1")

	res := run(t, "login", "--username", "alice", "--password", "secret1")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "signed in as alice\n", res.stdout)

	res = run(t, "--format", "json", "me")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var profile userProfile
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &profile))
	assert.Equal(t, "alice", profile.User.Username)

	res = run(t, "logout")
	require.Equal(t, ExitSuccess, res.code, res.stderr)

	res = run(t, "me")
	assert.Equal(t, ExitFailure, res.code)
}

func TestExecute_LoginErrors(t *testing.T) {
	srv := backend(t)
	srv.SeedUser("alice", "secret1")

	res := run(t, "login", "-u", "alice", "-p", "wrong")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "Error: invalid username or password")

	res = run(t, "login", "-u", "alice")
	assert.Equal(t, ExitUsage, res.code)
}

func TestExecute_UsageErrors(t *testing.T) {
	backend(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"--format", "yaml", "snippets", "languages"}, `invalid format "yaml"`},
		{"bad id", []string{"snippets", "get", "abc"}, `cannot convert value "abc" to number`},
		{"delete needs --yes", []string{"account", "delete"}, "without --yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.args...)
			assert.Equal(t, ExitUsage, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestExecute_SnippetLifecycle(t *testing.T) {
	srv := backend(t)
	srv.SeedUser("alice", "secret1")
	login(t, "alice", "secret1")

	code := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(code, []byte("package main\n"), 0o644))

	res := run(t, "--format", "json", "snippets", "create", "-l", "go", "-f", code)
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var created model.Snippet
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &created))
	assert.Equal(t, "package main", created.Code)
	id := created.ID

	srv.ResetCalls()
	res = run(t, "snippets", "like", itoa(id))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "+1/-0")
	assert.Equal(t, 2, srv.Calls("GET /snippets/{id}"), "the author is read before marking")
	assert.Equal(t, 1, srv.Calls("POST /snippets/{id}/mark"))

	res = run(t, "snippets", "list")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "alice")

	res = run(t, "snippets", "delete", itoa(id))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	_, ok := srv.Snippet(id)
	assert.False(t, ok)
}

func TestExecute_Languages(t *testing.T) {
	srv := backend(t)
	srv.SeedUser("alice", "secret1")
	login(t, "alice", "secret1")

	res := run(t, "snippets", "languages")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Equal(t, "go\njavascript\npython\ntypescript\n", res.stdout)
}

func TestExecute_BackendFailure(t *testing.T) {
	srv := backend(t)
	srv.SeedUser("alice", "secret1")
	login(t, "alice", "secret1")
	srv.FailTimes("GET /snippets/languages", -1, http.StatusInternalServerError, "database down")

	res := run(t, "snippets", "languages")
	assert.Equal(t, ExitFailure, res.code)
	assert.Contains(t, res.stderr, "Error: database down\n")

	res = run(t, "-v", "snippets", "languages")
	assert.Contains(t, res.stderr, "status=500")
}

func TestExecute_AnswerAndAccept(t *testing.T) {
	srv := backend(t)
	alice := srv.SeedUser("alice", "secret1")
	bob := srv.SeedUser("bob", "secret2")
	qid := srv.SeedQuestion(alice.ID, "nil map?", "why does it panic")
	aid := srv.SeedAnswer(qid, bob.ID, "make it first", false)
	login(t, "alice", "secret1")

	res := run(t, "questions", "accept", itoa(qid), itoa(aid))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "[resolved]")
	assert.True(t, srv.AnswerCorrect(aid))
}

func TestExecute_UserProfile(t *testing.T) {
	srv := backend(t)
	alice := srv.SeedUser("alice", "secret1")
	srv.SeedSnippet(alice.ID, "go", "package a")
	login(t, "alice", "secret1")

	res := run(t, "--format", "json", "users", "get", itoa(alice.ID))
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	var p userProfile
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &p))
	assert.Equal(t, "alice", p.User.Username)
	assert.Equal(t, int64(1), p.Statistic.SnippetsCount)
}

func TestExecute_PostComment(t *testing.T) {
	srv := backend(t)
	alice := srv.SeedUser("alice", "secret1")
	id := srv.SeedSnippet(alice.ID, "go", "package a")
	login(t, "alice", "secret1")

	res := run(t, "comments", "post", itoa(id), "nice one")
	require.Equal(t, ExitSuccess, res.code, res.stderr)
	assert.Contains(t, res.stdout, "posted comment #")

	sn, ok := srv.Snippet(id)
	require.True(t, ok)
	assert.Equal(t, 1, sn.CommentsCount)
}

func TestExecute_CommentsDisabled(t *testing.T) {
	srv := backend(t)
	t.Setenv("SNIPPETHUB_WS_ENABLED", "false")
	alice := srv.SeedUser("alice", "secret1")
	id := srv.SeedSnippet(alice.ID, "go", "package a")

	res := run(t, "comments", "watch", itoa(id))
	assert.Equal(t, ExitUsage, res.code)
	assert.Contains(t, res.stderr, "disabled")
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
