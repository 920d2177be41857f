package ledger

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps Offset within int range for every page size.
	MaxPage = math.MaxInt / MaxPageSize
)

// PageRequest selects a window of ledger entries, newest first. Page is
// 1-indexed.
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPageRequest normalizes caller supplied paging values.
func NewPageRequest(page, pageSize int) PageRequest {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}
}

// Offset returns the number of entries to skip.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Page is one slice of a wallet's ledger in descending creation order.
type Page struct {
	Entries    []Entry `json:"entries"`
	Page       int     `json:"page"`
	PageSize   int     `json:"page_size"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"total_pages"`
}

// NewPage assembles a page and derives the page count from total.
func NewPage(req PageRequest, entries []Entry, total int64) Page {
	if entries == nil {
		entries = []Entry{}
	}
	pages := int(total / int64(req.PageSize))
	if total%int64(req.PageSize) > 0 {
		pages++
	}
	return Page{
		Entries:    entries,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: pages,
	}
}
