package mapper

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
)

// =========================================================================
// ENVELOPE
// =========================================================================

func TestUnwrap(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare object", `{"id":1,"username":"a"}`, `{"id":1,"username":"a"}`},
		{"one envelope", `{"data":{"id":1,"username":"a"}}`, `{"id":1,"username":"a"}`},
		{"two envelopes", `{"data":{"data":{"id":1,"username":"a"}}}`, `{"id":1,"username":"a"}`},
		{"list page keeps data", `{"data":[1],"meta":{},"links":{}}`, `{"data":[1],"meta":{},"links":{}}`},
		{"enveloped list page", `{"data":{"data":[1],"meta":{},"links":{}}}`, `{"data":[1],"meta":{},"links":{}}`},
		{"enveloped array", `{"data":["go","rust"]}`, `["go","rust"]`},
		{"bare array", ` ["go"] `, `["go"]`},
		{"enveloped null", `{"data":null}`, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(Unwrap([]byte(tt.raw))))
		})
	}
}

func TestDecodeUser_EnvelopeLevelsAreEquivalent(t *testing.T) {
	bare, err := DecodeUser("/me", []byte(`{"id":1,"username":"a","role":"user"}`))
	require.NoError(t, err)

	wrapped, err := DecodeUser("/me", []byte(`{"data":{"data":{"id":1,"username":"a","role":"user"}}}`))
	require.NoError(t, err)

	assert.Equal(t, bare, wrapped)
	assert.Equal(t, model.User{ID: 1, Username: "a", Role: "user"}, bare)
}

// =========================================================================
// NUMBERS
// =========================================================================

func TestToInt64(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{" 7 ", 7, false},
		{"42.0", 42, false},
		{"-3", -3, false},
		{"abc", 0, true},
		{"", 0, true},
		{"4.5", 0, true},
		{"Infinity", 0, true},
		{"NaN", 0, true},
		{"9223372036854775807", math.MaxInt64, false},
		{"-9223372036854775808", math.MinInt64, false},
		{"9223372036854775808", 0, true},
		{"-9223372036854775809", 0, true},
		{"1e20", 0, true},
		{"-1e20", 0, true},
		{"1e3", 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ToInt64(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperror.ErrConversion), "want ErrConversion, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSnippet_StringID(t *testing.T) {
	s, err := DecodeSnippet("/snippets/{id}", []byte(`{"id":"5","language":"go","code":"x","user":{"id":"9","username":"bob"}}`))
	require.NoError(t, err)

	assert.Equal(t, int64(5), s.ID)
	assert.Equal(t, int64(9), s.Author.ID)
}

func TestDecodeSnippet_NonNumericIDFailsLoudly(t *testing.T) {
	_, err := DecodeSnippet("/snippets/{id}", []byte(`{"id":"five","language":"go","code":"x","user":{"id":9,"username":"bob"}}`))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConversion))
}

// =========================================================================
// SNIPPETS
// =========================================================================

func TestDecodeSnippet_CountsMarksAndDropsAuthorlessComments(t *testing.T) {
	raw := `{"data":{
		"id":5,"language":"go","code":"fmt.Println()",
		"user":{"id":9,"username":"bob","role":"user"},
		"marks":[{"id":1,"type":"like"},{"id":2,"type":"like"},{"id":3,"type":"dislike"}],
		"comments":[
			{"id":1,"content":"nice","user":{"id":2,"username":"ann"}},
			{"id":2,"content":"orphan"},
			{"id":"3","content":"ok","user":{"id":"4","username":"cat"},"createdAt":"2024-01-01"}
		]}}`

	s, err := DecodeSnippet("/snippets/{id}", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 2, s.Likes)
	assert.Equal(t, 1, s.Dislikes)
	assert.Equal(t, 2, s.CommentsCount)
	require.Len(t, s.Comments, 2)
	assert.Equal(t, "ann", s.Comments[0].Author.Username)
	assert.Equal(t, int64(3), s.Comments[1].ID)
}

func TestDecodeSnippet_MissingUserIsShapeMismatch(t *testing.T) {
	_, err := DecodeSnippet("/snippets/{id}", []byte(`{"id":5,"language":"go","code":"x"}`))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrShape))
	assert.Contains(t, err.Error(), "unexpected response shape for /snippets/{id}")
}

func TestDecodeSnippetPage_Cursor(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantHasMore  bool
		wantNextPage int
	}{
		{
			name:         "more pages by meta",
			raw:          `{"data":[],"meta":{"itemsPerPage":20,"totalItems":40,"currentPage":1,"totalPages":2},"links":{"next":null}}`,
			wantHasMore:  true,
			wantNextPage: 2,
		},
		{
			name:         "more pages by link",
			raw:          `{"data":[],"meta":{"itemsPerPage":20,"totalItems":40,"currentPage":2,"totalPages":2},"links":{"next":"/snippets?page=3"}}`,
			wantHasMore:  true,
			wantNextPage: 3,
		},
		{
			name:         "last page",
			raw:          `{"data":{"data":[],"meta":{"itemsPerPage":20,"totalItems":40,"currentPage":2,"totalPages":2},"links":{}}}`,
			wantHasMore:  false,
			wantNextPage: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodeSnippetPage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantHasMore, p.HasMore)
			assert.Equal(t, tt.wantNextPage, p.NextPage)
			assert.Equal(t, 20, p.PageSize)
			assert.Equal(t, 40, p.Total)
		})
	}
}

func TestDecodeSnippetPage_ShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no meta", `{"data":[],"links":{}}`},
		{"no links", `{"data":[],"meta":{"currentPage":1}}`},
		{"data not a list", `{"data":{"id":1},"meta":{"currentPage":1},"links":{}}`},
		{"item without id", `{"data":[{"language":"go","user":{"id":1}}],"meta":{"currentPage":1},"links":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnippetPage([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrShape), "got %v", err)
		})
	}
}

func TestDecodeLanguages(t *testing.T) {
	langs, err := DecodeLanguages([]byte(`{"data":["go","rust"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, langs)

	_, err = DecodeLanguages([]byte(`{"data":[1,2]}`))
	assert.True(t, errors.Is(err, apperror.ErrShape))

	_, err = DecodeLanguages([]byte(`null`))
	assert.True(t, errors.Is(err, apperror.ErrShape))
}

func TestDecodeUpdated(t *testing.T) {
	n, err := DecodeUpdated("PATCH /snippets/{id}", []byte(`{"data":{"updatedCount":1}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = DecodeUpdated("PATCH /snippets/{id}", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =========================================================================
// QUESTIONS
// =========================================================================

func TestDecodeQuestion(t *testing.T) {
	raw := `{"id":3,"title":"Why?","description":"body","attachedCode":"x := 1","isResolved":true,
		"answers":[
			{"id":1,"content":"because","isCorrect":true,"user":{"id":2,"username":"ann"}},
			{"id":2,"content":"ghost","isCorrect":false,"user":null}
		]}`

	q, err := DecodeQuestion("/questions/{id}", []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, model.UnknownAuthor, q.Author)
	assert.Equal(t, "body", q.Body)
	assert.Equal(t, "x := 1", q.Code)
	assert.True(t, q.Resolved)
	require.Len(t, q.Answers, 1)
	assert.Equal(t, "ann", q.Answers[0].Author.Username)
	assert.Equal(t, 2, q.AnswersCount)
}

func TestDecodeAnswer_WithoutAuthorIsShapeMismatch(t *testing.T) {
	_, err := DecodeAnswer([]byte(`{"id":1,"content":"x","isCorrect":false}`))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrShape))
}

// =========================================================================
// USERS
// =========================================================================

func TestDecodeUser_Nested(t *testing.T) {
	u, err := DecodeUser("/users/{id}", []byte(`{"data":{"user":{"id":"12","username":"zoe","role":"admin"}}}`))
	require.NoError(t, err)

	assert.Equal(t, model.User{ID: 12, Username: "zoe", Role: "admin"}, u)
}

func TestDecodeStatistic_AlternateNames(t *testing.T) {
	raw := `{"data":{"id":9,"statistic":{
		"snippets":"4","questionsCount":2,"likes":10,"dislikesCount":"1",
		"comments":3,"correctAnswersCount":2,"regularAnswersCount":5,"rating":"4.5"}}}`

	s, err := DecodeStatistic(9, []byte(raw))
	require.NoError(t, err)

	assert.Equal(t, model.UserStatistic{
		UserID:              9,
		SnippetsCount:       4,
		QuestionsCount:      2,
		AnswersCount:        7,
		CorrectAnswersCount: 2,
		RegularAnswersCount: 5,
		LikesCount:          10,
		DislikesCount:       1,
		CommentsCount:       3,
		Rating:              4.5,
	}, s)
}

func TestDecodeStatistic_GarbageCountersReadAsZero(t *testing.T) {
	s, err := DecodeStatistic(1, []byte(`{"statistic":{"snippetsCount":"lots","answers":3}}`))
	require.NoError(t, err)

	assert.Zero(t, s.SnippetsCount)
	assert.Equal(t, int64(3), s.AnswersCount)
}

func TestDecodeStatistic_MissingStatistic(t *testing.T) {
	_, err := DecodeStatistic(1, []byte(`{"data":{"id":1}}`))

	assert.True(t, errors.Is(err, apperror.ErrShape))
}

func TestDecodeUserPage(t *testing.T) {
	raw := `{"data":[{"id":1,"username":"a"},{"id":"2","username":"b","role":"admin"}],
		"meta":{"itemsPerPage":2,"totalItems":3,"currentPage":1,"totalPages":2},"links":{}}`

	p, err := DecodeUserPage([]byte(raw))
	require.NoError(t, err)

	require.Len(t, p.Items, 2)
	assert.Equal(t, int64(2), p.Items[1].ID)
	assert.True(t, p.HasMore)
	assert.Equal(t, 2, p.NextPage)
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"message":"Snippet not found","error":"Not Found","statusCode":404}`, "Snippet not found"},
		{`{"error":"bad credentials"}`, "bad credentials"},
		{`{"message":["code should not be empty"],"statusCode":400}`, "code should not be empty"},
		{`{"data":{"message":"wrapped"}}`, "wrapped"},
		{`<html>oops</html>`, ""},
		{``, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorMessage([]byte(tt.raw)), "body %s", tt.raw)
	}
}

// =========================================================================
// LIVE COMMENTS
// =========================================================================

func TestDecodeComment(t *testing.T) {
	raw := `{"id":"77","tempId":"t-1","roomId":"snippet:5","body":"hello",` +
		`"author":{"id":3,"username":"alice","role":"user"},"createdAt":"2024-05-01T10:00:00Z"}`

	c, ok, err := DecodeComment([]byte(raw))

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Comment{
		ID:        77,
		TempID:    "t-1",
		RoomID:    "snippet:5",
		Body:      "hello",
		Author:    model.Author{ID: 3, Username: "alice", Role: "user"},
		CreatedAt: "2024-05-01T10:00:00Z",
	}, c)
}

func TestDecodeComment_WithoutAuthorIsDropped(t *testing.T) {
	_, ok, err := DecodeComment([]byte(`{"id":1,"roomId":"snippet:5","body":"x","author":{"id":3}}`))

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeComment_MissingIDIsShapeMismatch(t *testing.T) {
	_, _, err := DecodeComment([]byte(`{"roomId":"snippet:5","body":"x"}`))

	assert.True(t, errors.Is(err, apperror.ErrShape))
}

func TestDecodeCommentRef(t *testing.T) {
	id, room, err := DecodeCommentRef([]byte(`{"id":"10"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)
	assert.Empty(t, room)

	id, room, err = DecodeCommentRef([]byte(`{"data":{"id":11,"roomId":"snippet:5"}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	assert.Equal(t, "snippet:5", room)

	_, _, err = DecodeCommentRef([]byte(`{"roomId":"snippet:5"}`))
	assert.True(t, errors.Is(err, apperror.ErrShape))
}
