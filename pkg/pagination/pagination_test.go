package pagination

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"limit=25&page=3", 25, 50},
		{"page=2", DefaultLimit, DefaultLimit},
		{"offset=5&page=3", DefaultLimit, 5},
		{"limit=500", MaxLimit, 0},
		{"limit=0", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
		{"offset=-5", DefaultLimit, 0},
		{"page=-1", DefaultLimit, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), httptest.NewRecorder())
			p := FromContext(c)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want limit=%d offset=%d",
					p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParams_Navigation(t *testing.T) {
	tests := []struct {
		name     string
		params   Params
		total    int
		hasNext  bool
		hasPrev  bool
		next     int
		previous int
	}{
		{"first of three", Params{Limit: 10}, 25, true, false, 10, 0},
		{"middle", Params{Limit: 10, Offset: 10}, 25, true, true, 20, 0},
		{"last partial", Params{Limit: 10, Offset: 20}, 25, false, true, 30, 10},
		{"unaligned", Params{Limit: 10, Offset: 5}, 25, true, true, 15, 0},
		{"past end", Params{Limit: 10, Offset: 30}, 25, false, true, 40, 20},
		{"empty", Params{Limit: 10}, 0, false, false, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.params
			if got := p.HasNext(tt.total); got != tt.hasNext {
				t.Errorf("HasNext = %v, want %v", got, tt.hasNext)
			}
			if got := p.HasPrevious(); got != tt.hasPrev {
				t.Errorf("HasPrevious = %v, want %v", got, tt.hasPrev)
			}
			if got := p.NextOffset(); got != tt.next {
				t.Errorf("NextOffset = %d, want %d", got, tt.next)
			}
			if got := p.PreviousOffset(); got != tt.previous {
				t.Errorf("PreviousOffset = %d, want %d", got, tt.previous)
			}
		})
	}
}

type appointment struct {
	ID int64 `json:"id"`
}

func TestNewPage(t *testing.T) {
	pg := NewPage([]appointment{{ID: 1}, {ID: 2}}, Params{Limit: 2}, 3)
	if !pg.HasMore || pg.Total != 3 || pg.Limit != 2 || pg.Offset != 0 {
		t.Errorf("unexpected page: %+v", pg)
	}
	if last := NewPage([]appointment{{ID: 3}}, Params{Limit: 2, Offset: 2}, 3); last.HasMore {
		t.Error("last page must not report more")
	}
}

func TestNewPage_EmptyEncodesArray(t *testing.T) {
	b, err := json.Marshal(NewPage[appointment](nil, Params{Limit: 20}, 0))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"data":[],"total":0,"limit":20,"offset":0,"has_more":false}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestParams_Links(t *testing.T) {
	u, _ := url.Parse("/api/v1/requests?state=pending&offset=10&limit=10")
	p := Params{Limit: 10, Offset: 10}

	links := p.Links(u, 35)
	if len(links) != 2 {
		t.Fatalf("expected next and prev links, got %v", links)
	}
	if links[0] != `</api/v1/requests?limit=10&offset=20&state=pending>; rel="next"` {
		t.Errorf("unexpected next link: %s", links[0])
	}
	if links[1] != `</api/v1/requests?limit=10&offset=0&state=pending>; rel="prev"` {
		t.Errorf("unexpected prev link: %s", links[1])
	}

	if got := (Params{Limit: 10}).Links(u, 5); len(got) != 0 {
		t.Errorf("expected no links for a single page, got %v", got)
	}
}

func TestSetLinkHeader(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?limit=2", nil), rec)

	SetLinkHeader(c, FromContext(c), 3)
	want := `</api/v1/appointments?limit=2&offset=2>; rel="next"`
	if got := rec.Header().Get("Link"); got != want {
		t.Errorf("Link = %q, want %q", got, want)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil), rec)
	SetLinkHeader(c, FromContext(c), 3)
	if got := rec.Header().Get("Link"); got != "" {
		t.Errorf("expected no Link header, got %q", got)
	}
}
