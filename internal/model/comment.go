package model

// PendingCommentID is the id a locally submitted comment carries until the
// server confirms it.
const PendingCommentID int64 = -1

// Comment is a live comment inside a room. TempID is only set on comments
// this client submitted; it correlates the pending entry with the server's
// comment:created echo.
type Comment struct {
	ID        int64  `json:"id"`
	TempID    string `json:"tempId,omitempty"`
	RoomID    string `json:"roomId"`
	Body      string `json:"body"`
	Author    Author `json:"author"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Pending   bool   `json:"-"`
}
