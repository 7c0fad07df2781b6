package mapper

import (
	"github.com/sakif/snippethub/internal/apperror"
	"github.com/sakif/snippethub/internal/model"
)

type wireMark struct {
	Type string `json:"type"`
}

type wireSnippetComment struct {
	ID        *Number        `json:"id"`
	Content   string         `json:"content"`
	User      *wireAuthorRef `json:"user"`
	CreatedAt string         `json:"createdAt"`
}

type wireSnippet struct {
	ID       *Number              `json:"id" validate:"required"`
	Language string               `json:"language"`
	Code     string               `json:"code"`
	User     *wireUser            `json:"user" validate:"required"`
	Marks    []wireMark           `json:"marks"`
	Comments []wireSnippetComment `json:"comments"`
}

func mapSnippet(w wireSnippet) (model.Snippet, error) {
	id, err := idOf(w.ID)
	if err != nil {
		return model.Snippet{}, err
	}
	authorID, err := idOf(w.User.ID)
	if err != nil {
		return model.Snippet{}, err
	}

	s := model.Snippet{
		ID:       id,
		Language: w.Language,
		Code:     w.Code,
		Author:   model.Author{ID: authorID, Username: w.User.Username},
	}
	for _, m := range w.Marks {
		switch model.MarkKind(m.Type) {
		case model.MarkLike:
			s.Likes++
		case model.MarkDislike:
			s.Dislikes++
		}
	}

	for _, c := range w.Comments {
		author, ok, err := resolveAuthor(c.User)
		if err != nil {
			return model.Snippet{}, err
		}
		if !ok || c.ID == nil {
			continue
		}
		cid, err := c.ID.Int64()
		if err != nil {
			return model.Snippet{}, err
		}
		s.Comments = append(s.Comments, model.SnippetComment{
			ID:        cid,
			Content:   c.Content,
			Author:    author,
			CreatedAt: c.CreatedAt,
		})
	}
	s.CommentsCount = len(s.Comments)

	return s, nil
}

// DecodeSnippet maps a single snippet: GET/DELETE /snippets/{id} and
// POST /snippets.
func DecodeSnippet(endpoint string, raw []byte) (model.Snippet, error) {
	var w wireSnippet
	if err := decode(endpoint, raw, &w); err != nil {
		return model.Snippet{}, err
	}
	return mapSnippet(w)
}

// DecodeSnippetPage maps GET /snippets.
func DecodeSnippetPage(raw []byte) (model.Page[model.Snippet], error) {
	var w wirePage[wireSnippet]
	if err := decode("/snippets", raw, &w); err != nil {
		return model.Page[model.Snippet]{}, err
	}
	return toPage(&w, always(mapSnippet))
}

// DecodeLanguages maps GET /snippets/languages, which must be a list of
// strings.
func DecodeLanguages(raw []byte) ([]string, error) {
	var w struct {
		Languages []string `validate:"required"`
	}
	if err := decodeInto("/snippets/languages", raw, &w.Languages); err != nil {
		return nil, err
	}
	if err := validate.Struct(&w); err != nil {
		return nil, apperror.ShapeMismatch("/snippets/languages", err)
	}
	return w.Languages, nil
}

type wireUpdated struct {
	UpdatedCount *Number `json:"updatedCount"`
}

// DecodeUpdated maps the `{updatedCount}` acknowledgement of PATCH calls. An
// empty body counts as zero updates.
func DecodeUpdated(endpoint string, raw []byte) (int64, error) {
	if len(Unwrap(raw)) == 0 {
		return 0, nil
	}
	var w wireUpdated
	if err := decode(endpoint, raw, &w); err != nil {
		return 0, err
	}
	if w.UpdatedCount == nil {
		return 0, nil
	}
	return w.UpdatedCount.Int64()
}
