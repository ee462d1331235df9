package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/reading"
)

// progressRequest carries either a ready percentage or the raw viewport.
type progressRequest struct {
	Percent      *float64 `json:"percent"`
	ScrollTop    *float64 `json:"scrollTop"`
	ScrollHeight *float64 `json:"scrollHeight"`
	ClientHeight *float64 `json:"clientHeight"`
}

type progressResponse struct {
	BookID    string     `json:"bookId"`
	ReaderID  string     `json:"readerId"`
	Percent   float64    `json:"percent"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	readerID := strings.TrimSpace(r.Header.Get("X-Reader-Id"))
	if readerID == "" {
		s.respondUnauthorized(w, r)
		return
	}

	var req progressRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	percent, field, ok := req.percent()
	if !ok {
		s.respondInvalidField(w, r, field)
		return
	}

	saved, err := s.repo.Progress.Save(r.Context(), domain.ReadingProgress{
		BookID:   chi.URLParam(r, "id"),
		ReaderID: readerID,
		Percent:  percent,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toProgressResponse(saved))
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	readerID := strings.TrimSpace(r.Header.Get("X-Reader-Id"))
	if readerID == "" {
		s.respondUnauthorized(w, r)
		return
	}
	bookID := chi.URLParam(r, "id")
	if _, err := s.repo.Books.GetByID(r.Context(), bookID); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	progress, err := s.repo.Progress.Get(r.Context(), bookID, readerID)
	if errors.Is(err, domain.ErrNotFound) {
		s.respondJSON(w, http.StatusOK, progressResponse{BookID: bookID, ReaderID: readerID})
		return
	}
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toProgressResponse(progress))
}

// percent resolves the request to a percentage, or names the bad field.
func (req progressRequest) percent() (float64, string, bool) {
	if req.Percent != nil {
		p := *req.Percent
		if math.IsNaN(p) || p < 0 || p > 100 {
			return 0, "percent", false
		}
		return p, "", true
	}
	switch {
	case req.ScrollTop == nil:
		return 0, "scrollTop", false
	case req.ScrollHeight == nil:
		return 0, "scrollHeight", false
	case req.ClientHeight == nil:
		return 0, "clientHeight", false
	}
	v := reading.Viewport{ScrollTop: *req.ScrollTop, ScrollHeight: *req.ScrollHeight, ClientHeight: *req.ClientHeight}
	if err := v.Validate(); err != nil {
		var fe *reading.FieldError
		if errors.As(err, &fe) {
			return 0, fe.Field, false
		}
		return 0, "scrollTop", false
	}
	return reading.Progress(v), "", true
}

func toProgressResponse(p domain.ReadingProgress) progressResponse {
	updated := p.UpdatedAt
	return progressResponse{
		BookID:    p.BookID,
		ReaderID:  p.ReaderID,
		Percent:   p.Percent,
		UpdatedAt: &updated,
	}
}
