package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func BenchmarkHandleSubmitRating(b *testing.B) {
	srv := buildTestServer(b)
	book := mustCreateBook(b, srv, `{"title":"Benchmark Book"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		payload := []byte(`{"rating":4.0}`)
		req := httptest.NewRequest(http.MethodPost, "/books/"+book.ID+"/ratings", bytes.NewReader(payload))
		req.Header.Set("X-Rater-Id", fmt.Sprintf("bench-%d", i))
		req = attachIDParam(req, book.ID)
		rec := httptest.NewRecorder()

		srv.handleSubmitRating(rec, req)
		if rec.Code != http.StatusCreated {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkHandleListBooks(b *testing.B) {
	srv := buildTestServer(b)
	for i := 0; i < 50; i++ {
		mustCreateBook(b, srv, fmt.Sprintf(`{"title":"Book %d"}`, i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/books?limit=20", nil)
		rec := httptest.NewRecorder()
		srv.handleListBooks(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
