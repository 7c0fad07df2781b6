package service

import (
	"github.com/sakif/snippethub/internal/model"
	"github.com/sakif/snippethub/internal/querycache"
)

// THE KEY SPACE:
// Every cached read lives under one of these keys. Keys are hierarchical, so
// invalidating a prefix reaches everything below it:
//
//	snippets
//	├── infinite/<filters>      paginated lists, one entry per filter set
//	├── byId/<id>               snippet detail
//	└── languages
//	questions
//	├── infinite/<filters>
//	└── byId/<id>
//	users
//	├── infinite/<filters>
//	├── byId/<id>
//	└── <id>/statistic
//	me                          the signed-in user
//
// Mutations only ever name keys through these functions.

func SnippetsKey() querycache.Key     { return querycache.K("snippets") }
func SnippetListsKey() querycache.Key { return querycache.K("snippets", "infinite") }
func LanguagesKey() querycache.Key    { return querycache.K("snippets", "languages") }

func SnippetListKey(f model.SnippetFilters) querycache.Key {
	return querycache.K("snippets", "infinite", f)
}

func SnippetKey(id int64) querycache.Key {
	return querycache.K("snippets", "byId", id)
}

func QuestionsKey() querycache.Key     { return querycache.K("questions") }
func QuestionListsKey() querycache.Key { return querycache.K("questions", "infinite") }

func QuestionListKey(f model.QuestionFilters) querycache.Key {
	return querycache.K("questions", "infinite", f)
}

func QuestionKey(id int64) querycache.Key {
	return querycache.K("questions", "byId", id)
}

func UsersKey() querycache.Key     { return querycache.K("users") }
func UserListsKey() querycache.Key { return querycache.K("users", "infinite") }

func UserListKey(f model.UserFilters) querycache.Key {
	return querycache.K("users", "infinite", f)
}

func UserKey(id int64) querycache.Key {
	return querycache.K("users", "byId", id)
}

func StatisticKey(userID int64) querycache.Key {
	return querycache.K("users", userID, "statistic")
}

func MeKey() querycache.Key { return querycache.K("me") }
