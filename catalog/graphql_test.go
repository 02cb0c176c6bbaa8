package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	b, ok := m[ref]
	if !ok {
		return nil, errors.New("not found: " + ref)
	}
	return b, nil
}

const cmsTemplate = `{"data":{"cms":{
  "pressPhotos":{"items":[
    {"photo":{"icon":"https://img/p1-icon","banner":"https://img/p1-banner"}},
    {"photo":{"icon":"https://img/p2-icon","banner":"https://img/p2-banner"}}
  ]},
  "nextEvent":{"items":[%EVENT%]},
  "logo":{"items":[{"logoWhite":{"url":"https://img/logo"}}]}
}}}`

func cmsBody(event string) string {
	return strings.Replace(cmsTemplate, "%EVENT%", event, 1)
}

func decodeCMS(t *testing.T, body string) *CMSResponse {
	t.Helper()
	var out graphQLResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out.Data.CMS
}

func TestBuildSnapshot_Overrides(t *testing.T) {
	// WHAT: Event banners and icons override the default pool independently.
	// WHY: An event with only icons must not wipe out the default banners.
	tests := []struct {
		name         string
		event        string
		wantIcons    []string
		wantBanners  []string
		iconOrigin   string
		bannerOrigin string
	}{
		{
			name:         "no event",
			event:        ``,
			wantIcons:    []string{"https://img/p1-icon", "https://img/p2-icon"},
			wantBanners:  []string{"https://img/p1-banner", "https://img/p2-banner"},
			iconOrigin:   OriginDefault,
			bannerOrigin: OriginDefault,
		},
		{
			name:         "icons only",
			event:        `{"banners":{"items":[]},"icons":{"items":[{"url":"https://img/ev-icon"}]}}`,
			wantIcons:    []string{"https://img/ev-icon"},
			wantBanners:  []string{"https://img/p1-banner", "https://img/p2-banner"},
			iconOrigin:   OriginEvent,
			bannerOrigin: OriginDefault,
		},
		{
			name:         "banners only",
			event:        `{"banners":{"items":[{"url":"https://img/ev-banner"}]},"icons":null}`,
			wantIcons:    []string{"https://img/p1-icon", "https://img/p2-icon"},
			wantBanners:  []string{"https://img/ev-banner"},
			iconOrigin:   OriginDefault,
			bannerOrigin: OriginEvent,
		},
		{
			name:         "both",
			event:        `{"banners":{"items":[{"url":"https://img/ev-banner"}]},"icons":{"items":[{"url":"https://img/ev-icon"}]}}`,
			wantIcons:    []string{"https://img/ev-icon"},
			wantBanners:  []string{"https://img/ev-banner"},
			iconOrigin:   OriginEvent,
			bannerOrigin: OriginEvent,
		},
		{
			name:         "event with neither",
			event:        `{"banners":{"items":[]},"icons":{"items":[]}}`,
			wantIcons:    []string{"https://img/p1-icon", "https://img/p2-icon"},
			wantBanners:  []string{"https://img/p1-banner", "https://img/p2-banner"},
			iconOrigin:   OriginDefault,
			bannerOrigin: OriginDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := BuildSnapshot(decodeCMS(t, cmsBody(tt.event)))
			if !equal(snap.Icons, tt.wantIcons) {
				t.Errorf("icons: got %v, want %v", snap.Icons, tt.wantIcons)
			}
			if !equal(snap.Banners, tt.wantBanners) {
				t.Errorf("banners: got %v, want %v", snap.Banners, tt.wantBanners)
			}
			if snap.IconOrigin != tt.iconOrigin || snap.BannerOrigin != tt.bannerOrigin {
				t.Errorf("origins: got %s/%s", snap.IconOrigin, snap.BannerOrigin)
			}
		})
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGraphQLSource_Load(t *testing.T) {
	// WHAT: Load posts the query with the event window and fetches the logo.
	// WHY: The window bounds are configurable and must reach the CMS as ISO-8601.
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var gotReq graphQLRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type: got %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(cmsBody(`{"icons":{"items":[{"url":"https://img/ev-icon"}]}}`)))
	}))
	defer srv.Close()

	src := NewGraphQLSource(srv.Client(), mapFetcher{"https://img/logo": []byte("LOGO")}, GraphQLConfig{
		Endpoint:       srv.URL,
		IconGeometry:   Geometry{Width: 256, Height: 256},
		BannerGeometry: Geometry{Width: 960, Height: 540},
		Now:            func() time.Time { return now },
	})

	snap, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := gotReq.Variables["pastEventCutoff"]; got != "2026-03-09T12:00:00.000Z" {
		t.Errorf("pastEventCutoff: got %v", got)
	}
	if got := gotReq.Variables["futureEventCutoff"]; got != "2026-03-13T12:00:00.000Z" {
		t.Errorf("futureEventCutoff: got %v", got)
	}
	if !strings.Contains(gotReq.Query, "width: 256, height: 256") {
		t.Error("query missing icon geometry")
	}
	if !strings.Contains(gotReq.Query, "width: 960, height: 540") {
		t.Error("query missing banner geometry")
	}
	if !strings.Contains(gotReq.Query, `webname:"codeday"`) {
		t.Error("query missing default program")
	}

	if string(snap.Logo) != "LOGO" {
		t.Errorf("logo: got %q", snap.Logo)
	}
	if len(snap.Icons) != 1 || snap.IconOrigin != OriginEvent {
		t.Errorf("icons: got %v (%s)", snap.Icons, snap.IconOrigin)
	}
	if len(snap.Banners) != 2 || snap.BannerOrigin != OriginDefault {
		t.Errorf("banners: got %v (%s)", snap.Banners, snap.BannerOrigin)
	}
	if !snap.RefreshedAt.Equal(now) {
		t.Errorf("refreshed_at: got %v", snap.RefreshedAt)
	}
}

func TestGraphQLSource_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		fetcher mapFetcher
		wantErr error
	}{
		{name: "http 500", status: 500, body: `oops`},
		{name: "bad json", status: 200, body: `{not json`},
		{name: "graphql errors", status: 200, body: `{"errors":[{"message":"bad field"}]}`},
		{name: "no data", status: 200, body: `{"data":null}`},
		{
			name:    "no logo",
			status:  200,
			body:    `{"data":{"cms":{"pressPhotos":{"items":[]},"logo":{"items":[]}}}}`,
			wantErr: ErrNoLogo,
		},
		{name: "logo fetch fails", status: 200, body: cmsBody(""), fetcher: mapFetcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := tt.fetcher
			if f == nil {
				f = mapFetcher{"https://img/logo": []byte("LOGO")}
			}
			src := NewGraphQLSource(srv.Client(), f, GraphQLConfig{Endpoint: srv.URL})
			snap, err := src.Load(context.Background())
			if err == nil {
				t.Fatalf("expected error, got snapshot %+v", snap)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCache_WithGraphQLSource_FailureKeepsSnapshot(t *testing.T) {
	// WHAT: A CMS outage after a good refresh keeps the old pools and logo.
	// WHY: Refresh errors never reach batch operations.
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(cmsBody("")))
	}))
	defer srv.Close()

	src := NewGraphQLSource(srv.Client(), mapFetcher{"https://img/logo": []byte("LOGO")}, GraphQLConfig{Endpoint: srv.URL})
	c := NewCache(src, quietLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	down.Store(true)
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrCatalogRefresh) {
		t.Fatalf("refresh during outage: got %v", err)
	}
	if n := len(c.Get(Banner)); n != 2 {
		t.Errorf("banners: got %d, want 2", n)
	}
	if string(c.Logo()) != "LOGO" {
		t.Errorf("logo: got %q", c.Logo())
	}
}
