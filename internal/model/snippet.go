// Package model defines the domain entities shared by every layer of the
// client: the resource clients produce them, the cache stores them and the
// CLI renders them.
//
// All ids are int64. The backend sometimes sends ids as numeric strings; the
// mapper package converts them before a value ever reaches this package.
package model

// MarkKind is the reaction a user leaves on a snippet.
type MarkKind string

const (
	MarkLike    MarkKind = "like"
	MarkDislike MarkKind = "dislike"
)

// Valid reports whether k is one of the two marks the backend accepts.
func (k MarkKind) Valid() bool {
	return k == MarkLike || k == MarkDislike
}

// Author is the trimmed-down user embedded in snippets, questions and answers.
type Author struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role,omitempty"`
}

// Snippet is a posted piece of code with its reaction counters.
//
// Likes and Dislikes are derived from the marks the backend returns; they are
// also the fields the like/dislike mutation patches optimistically.
type Snippet struct {
	ID            int64            `json:"id"`
	Language      string           `json:"language"`
	Code          string           `json:"code"`
	Author        Author           `json:"author"`
	Likes         int              `json:"likes"`
	Dislikes      int              `json:"dislikes"`
	CommentsCount int              `json:"commentsCount"`
	Comments      []SnippetComment `json:"comments,omitempty"`
}

// SnippetComment is a comment as embedded in GET /snippets/{id}. Live
// comments use Comment instead.
type SnippetComment struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Author    Author `json:"author"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// WithMark returns a copy of s with one more like or dislike.
func (s Snippet) WithMark(kind MarkKind) Snippet {
	switch kind {
	case MarkLike:
		s.Likes++
	case MarkDislike:
		s.Dislikes++
	}
	return s
}

// SnippetInput is the body of POST /snippets and PATCH /snippets/{id}.
type SnippetInput struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// SnippetFilters select a snippets list. The zero value lists everything with
// the default page size.
type SnippetFilters struct {
	Limit  int      `json:"limit"`
	UserID int64    `json:"userId,omitempty"`
	SortBy []string `json:"sortBy,omitempty"`
}
