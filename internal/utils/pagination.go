package utils

import (
	"math"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxOffset bounds how deep a listing can be paged.
	MaxOffset = math.MaxInt32
)

// Page is a validated page request.
type Page struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the page: (page-1) * page_size.
func (p Page) Offset() int { return (p.Page - 1) * p.PageSize }

// Limit returns the page size.
func (p Page) Limit() int { return p.PageSize }

// ParsePage reads raw page/page_size query values.  Missing or malformed
// values fall back to the defaults; page_size is clamped to [1,MaxPageSize]
// and page so that the offset stays within MaxOffset.
func ParsePage(rawPage, rawSize string) Page {
	p := Page{Page: 1, PageSize: DefaultPageSize}
	if n, err := strconv.Atoi(rawPage); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(rawSize); err == nil && n > 0 {
		p.PageSize = n
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	if maxPage := MaxOffset/p.PageSize + 1; p.Page > maxPage {
		p.Page = maxPage
	}
	return p
}
