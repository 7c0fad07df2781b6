package mapper

import "github.com/sakif/snippethub/internal/model"

type wireMeta struct {
	ItemsPerPage int `json:"itemsPerPage"`
	TotalItems   int `json:"totalItems"`
	CurrentPage  int `json:"currentPage" validate:"gte=1"`
	TotalPages   int `json:"totalPages"`
}

type wireLinks struct {
	Next *string `json:"next"`
}

// wirePage is the `{data: [...], meta, links}` shape shared by every list
// endpoint.
type wirePage[W any] struct {
	Data  []W        `json:"data" validate:"required,dive"`
	Meta  *wireMeta  `json:"meta" validate:"required"`
	Links *wireLinks `json:"links" validate:"required"`
}

// toPage maps every item with conv and derives the cursor: there is another
// page when the backend links one or when currentPage < totalPages.
func toPage[W, T any](w *wirePage[W], conv func(W) (T, bool, error)) (model.Page[T], error) {
	items := make([]T, 0, len(w.Data))
	for _, item := range w.Data {
		v, ok, err := conv(item)
		if err != nil {
			return model.Page[T]{}, err
		}
		if ok {
			items = append(items, v)
		}
	}

	hasMore := (w.Links.Next != nil && *w.Links.Next != "") || w.Meta.CurrentPage < w.Meta.TotalPages
	page := model.Page[T]{
		Items:    items,
		Page:     w.Meta.CurrentPage,
		PageSize: w.Meta.ItemsPerPage,
		Total:    w.Meta.TotalItems,
		HasMore:  hasMore,
	}
	if hasMore {
		page.NextPage = w.Meta.CurrentPage + 1
	}
	return page, nil
}

// always adapts a mapping that never drops an item.
func always[W, T any](f func(W) (T, error)) func(W) (T, bool, error) {
	return func(w W) (T, bool, error) {
		v, err := f(w)
		return v, true, err
	}
}
