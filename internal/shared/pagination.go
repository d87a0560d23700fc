package shared

import "math"

// PageMeta is the pagination envelope returned by list endpoints.
type PageMeta struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// NewPageMeta computes pagination metadata.
func NewPageMeta(page, perPage, total int) PageMeta {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	last := int(math.Ceil(float64(total) / float64(perPage)))
	if last < 1 {
		last = 1
	}
	return PageMeta{CurrentPage: page, LastPage: last, PerPage: perPage, Total: total}
}

// Offset converts page/per-page into a SQL offset.
func (m PageMeta) Offset() int {
	return (m.CurrentPage - 1) * m.PerPage
}
