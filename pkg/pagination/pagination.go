package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is the window a list endpoint serves.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and either ?offset= or the 1-based ?page=.
// Missing or malformed values fall back to DefaultLimit and offset 0; limit is
// capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	} else if page, err := strconv.Atoi(c.QueryParam("page")); err == nil && page > 1 {
		p.Offset = (page - 1) * p.Limit
	}
	return p
}

// Page is the list envelope returned by collection endpoints. Data is
// never null so clients can range over it unconditionally.
type Page[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

func NewPage[T any](items []T, p Params, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	return &Page[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// HasNext decides has_more and the rel="next" link.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious decides the rel="prev" link.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset clamps at the first row.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Links returns RFC 8288 link values for the pages around p. Other query
// parameters on u, such as filters, are kept.
func (p Params) Links(u *url.URL, total int) []string {
	link := func(rel string, offset int) string {
		q := u.Query()
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("offset", strconv.Itoa(offset))
		return fmt.Sprintf("<%s?%s>; rel=%q", u.Path, q.Encode(), rel)
	}
	var links []string
	if p.HasNext(total) {
		links = append(links, link("next", p.NextOffset()))
	}
	if p.HasPrevious() {
		links = append(links, link("prev", p.PreviousOffset()))
	}
	return links
}

// SetLinkHeader writes the Link header for a list response when there is
// another page in either direction.
func SetLinkHeader(c echo.Context, p Params, total int) {
	if links := p.Links(c.Request().URL, total); len(links) > 0 {
		c.Response().Header().Set("Link", strings.Join(links, ", "))
	}
}
