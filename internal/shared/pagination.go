package shared

import "math"

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Bounds returns the half-open slice range covered by the page. Both ends
// stay within [0, Total] for any page.
func (p Pagination) Bounds() (int, int) {
	if p.Total <= 0 || p.PerPage <= 0 {
		return 0, 0
	}
	page := max(p.Page, 1)
	// compare in page units so large pages cannot overflow the offset
	if page-1 >= (p.Total+p.PerPage-1)/p.PerPage {
		return p.Total, p.Total
	}
	start := (page - 1) * p.PerPage
	end := min(start+p.PerPage, p.Total)
	return start, end
}
