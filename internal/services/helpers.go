package services

import (
	"context"
	"strings"
)

// Pagination carries list windowing parameters. Zero values select the
// defaults.
type Pagination struct {
	Page    int
	PerPage int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

func (p Pagination) normalise() (page, perPage int) {
	page = p.Page
	if page < 1 {
		page = 1
	}
	perPage = p.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func (p Pagination) offset() int {
	page, perPage := p.normalise()
	return (page - 1) * perPage
}

func (p Pagination) limit() int {
	_, perPage := p.normalise()
	return perPage
}

// TotalPages computes the page count for a result set of the given size.
func (p Pagination) TotalPages(total int64) int {
	_, perPage := p.normalise()
	pages := int(total) / perPage
	if int(total)%perPage != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
