package models

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// Page is a paginated listing.
type Page[T any] struct {
	Data []T      `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPageMeta computes page metadata; page and perPage must be at least 1.
func NewPageMeta(page, perPage, total int) PageMeta {
	last := (total + perPage - 1) / perPage
	if last < 1 {
		last = 1
	}
	return PageMeta{CurrentPage: page, PerPage: perPage, Total: total, LastPage: last}
}

// ClampPage normalizes page and perPage: page >= 1, perPage in 1..max,
// falling back to def when perPage is zero.
func ClampPage(page, perPage, def, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage == 0 {
		perPage = def
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > max {
		perPage = max
	}
	return page, perPage
}
