package mapper

import (
	"github.com/sakif/snippethub/internal/model"
)

type wireComment struct {
	ID        *Number        `json:"id" validate:"required"`
	TempID    string         `json:"tempId"`
	RoomID    string         `json:"roomId"`
	Body      string         `json:"body"`
	Author    *wireAuthorRef `json:"author"`
	CreatedAt string         `json:"createdAt"`
	UpdatedAt string         `json:"updatedAt"`
}

// DecodeComment maps the payload of a comment:created, comment:updated or
// comment:deleted event. ok is false for a comment without a resolvable
// author, which callers drop.
func DecodeComment(raw []byte) (c model.Comment, ok bool, err error) {
	var w wireComment
	if err := decode("live comment", raw, &w); err != nil {
		return model.Comment{}, false, err
	}
	id, err := idOf(w.ID)
	if err != nil {
		return model.Comment{}, false, err
	}
	author, ok, err := resolveAuthor(w.Author)
	if err != nil || !ok {
		return model.Comment{}, false, err
	}
	return model.Comment{
		ID:        id,
		TempID:    w.TempID,
		RoomID:    w.RoomID,
		Body:      w.Body,
		Author:    author,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}, true, nil
}

type wireCommentRef struct {
	ID     *Number `json:"id" validate:"required"`
	RoomID string  `json:"roomId"`
}

// DecodeCommentRef reads only the id and the optional roomId of a
// comment:deleted payload. A deletion needs nothing else.
func DecodeCommentRef(raw []byte) (id int64, roomID string, err error) {
	var w wireCommentRef
	if err := decode("live comment", raw, &w); err != nil {
		return 0, "", err
	}
	id, err = idOf(w.ID)
	if err != nil {
		return 0, "", err
	}
	return id, w.RoomID, nil
}
