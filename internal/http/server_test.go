package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/bookshelf/internal/bookinfo"
	"github.com/Clark-Hu/bookshelf/internal/config"
	"github.com/Clark-Hu/bookshelf/internal/i18n"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
	"github.com/Clark-Hu/bookshelf/internal/repository"
	"github.com/Clark-Hu/bookshelf/internal/store"
)

// fakeBookInfo serves canned metadata keyed by title.
type fakeBookInfo map[string]*bookinfo.Result

func (f fakeBookInfo) Fetch(_ context.Context, title string) (*bookinfo.Result, error) {
	if res, ok := f[title]; ok {
		return res, nil
	}
	return nil, bookinfo.ErrNotFound
}

type failingHealth struct{}

func (failingHealth) HealthCheck(context.Context) error { return errors.New("db down") }

type pooledHealth struct{ stats store.PoolStats }

func (pooledHealth) HealthCheck(context.Context) error { return nil }

func (p pooledHealth) Stats() store.PoolStats { return p.stats }

type testServerOption func(*Deps)

func withPolicy(p ledger.Policy) testServerOption {
	return func(d *Deps) {
		l, err := ledger.New(d.Repo.Ratings, ledger.Options{Policy: p})
		if err != nil {
			panic(err)
		}
		d.Ledger = l
	}
}

func buildTestServer(tb testing.TB, opts ...testServerOption) *Server {
	tb.Helper()
	cfg := config.Config{
		Port:                "0",
		AuthToken:           "secret",
		ReadTimeoutSecs:     15,
		WriteTimeoutSecs:    15,
		IdleTimeoutSecs:     60,
		BookInfoTimeoutSecs: 1,
	}

	repo := repository.NewMemory()
	l, err := ledger.New(repo.Ratings, ledger.Options{})
	if err != nil {
		tb.Fatalf("ledger: %v", err)
	}
	translator, err := i18n.NewTranslator(i18n.Arabic)
	if err != nil {
		tb.Fatalf("translator: %v", err)
	}

	deps := Deps{
		Repo:       repo,
		Ledger:     l,
		BookInfo:   fakeBookInfo{},
		Translator: translator,
		Logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return New(cfg, deps)
}

// do sends a request through the full router.
func do(tb testing.TB, srv *Server, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	tb.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](tb testing.TB, rec *httptest.ResponseRecorder) T {
	tb.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		tb.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func attachIDParam(req *http.Request, id string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

var admin = map[string]string{"Authorization": "Bearer secret"}

func mustCreateBook(tb testing.TB, srv *Server, body string) bookResponse {
	tb.Helper()
	rec := do(tb, srv, http.MethodPost, "/books", body, admin)
	if rec.Code != http.StatusCreated {
		tb.Fatalf("create book: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[bookResponse](tb, rec)
}

func TestHealthz(t *testing.T) {
	srv := buildTestServer(t)
	if rec := do(t, srv, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body healthResponse
	srv = buildTestServer(t, func(d *Deps) { d.Health = pooledHealth{stats: store.PoolStats{Open: 3, Idle: 2, InUse: 1, Max: 20}} })
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Pool == nil || body.Pool.InUse != 1 || body.Pool.Max != 20 {
		t.Fatalf("health body = %+v", body)
	}

	srv = buildTestServer(t, func(d *Deps) { d.Health = failingHealth{} })
	if rec := do(t, srv, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestVerifyBearer(t *testing.T) {
	srv := &Server{cfg: config.Config{AuthToken: "secret"}}
	cases := []struct {
		header string
		want   bool
	}{
		{"", false},
		{"secret", false},
		{"Bearer", false},
		{"Bearer ", false},
		{"Bearer wrong", false},
		{"Bearer secret", true},
		{"Bearer  secret ", true},
	}
	for _, tc := range cases {
		if got := srv.verifyBearer(tc.header); got != tc.want {
			t.Fatalf("verifyBearer(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestRoundToOneDecimal(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"zero", 0, 0},
		{"round-up", 3.75, 3.8},
		{"round-down", 2.74, 2.7},
		{"exact", 4.5, 4.5},
		{"ledger scenario", 4.504, 4.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := roundToOneDecimal(tt.value); got != tt.want {
				t.Fatalf("roundToOneDecimal(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
