package model

// Page is one page of a paginated list. NextPage is 0 when HasMore is false.
type Page[T any] struct {
	Items    []T
	Page     int
	PageSize int
	Total    int
	HasMore  bool
	NextPage int
}
