package model

// User is an account as returned by /me, /users and /auth/login.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserStatistic aggregates a user's activity. Every counter defaults to zero
// when the backend omits it.
type UserStatistic struct {
	UserID              int64   `json:"userId"`
	SnippetsCount       int64   `json:"snippetsCount"`
	QuestionsCount      int64   `json:"questionsCount"`
	AnswersCount        int64   `json:"answersCount"`
	CorrectAnswersCount int64   `json:"correctAnswersCount"`
	RegularAnswersCount int64   `json:"regularAnswersCount"`
	LikesCount          int64   `json:"likesCount"`
	DislikesCount       int64   `json:"dislikesCount"`
	CommentsCount       int64   `json:"commentsCount"`
	Rating              float64 `json:"rating"`
}

// Credentials is the body of POST /auth/login and POST /register.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PasswordChange is the body of PATCH /me/password.
type PasswordChange struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type UserFilters struct {
	Limit    int      `json:"limit"`
	Search   string   `json:"search,omitempty"`
	SearchBy []string `json:"searchBy,omitempty"`
	SortBy   []string `json:"sortBy,omitempty"`
}
