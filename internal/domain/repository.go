// Package domain provides types shared by the business packages.
package domain

// --- Filter & Pagination ---

const (
	// DefaultLimit is applied when a list request gives no limit.
	DefaultLimit = 50
	// MaxLimit caps any single page.
	MaxLimit = 500
)

// Page holds pagination options for list operations.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResult wraps items with the page they were read for.
func NewListResult[T any](items []T, total int64, p Page) ListResult[T] {
	if items == nil {
		items = []T{}
	}
	return ListResult[T]{Items: items, TotalCount: total, Limit: p.Limit, Offset: p.Offset}
}
