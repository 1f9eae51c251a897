// Package pagination holds the page/limit query helpers and the paginated
// response envelope shared by list endpoints.
package pagination

import (
	"errors"
	"net/url"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	ErrInvalidPage  = errors.New("page must be an integer >= 1")
	ErrInvalidLimit = errors.New("limit must be an integer between 1 and 100")
)

// Params are the page (1-indexed) and page size requested by a client.
type Params struct {
	Page  int
	Limit int
}

// Offset is the number of rows to skip for this page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ParseParams reads "page" and "limit" from a query string, applying the
// defaults when they are absent.
func ParseParams(q url.Values) (Params, error) {
	p := Params{Page: DefaultPage, Limit: DefaultLimit}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Params{}, ErrInvalidPage
		}
		p.Page = n
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			return Params{}, ErrInvalidLimit
		}
		p.Limit = n
	}

	return p, nil
}

// Meta describes where a page sits in the full result set.
type Meta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// Page wraps one page of items with its metadata.
type Page[T any] struct {
	Data []T  `json:"data"`
	Meta Meta `json:"meta"`
}

// NewPage builds the envelope for data, which holds the items of page p out
// of total items overall.
func NewPage[T any](data []T, total int, p Params) Page[T] {
	if data == nil {
		data = []T{}
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}

	return Page[T]{
		Data: data,
		Meta: Meta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    p.Page < totalPages,
			HasPrev:    p.Page > 1,
		},
	}
}
