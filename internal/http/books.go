package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
	"github.com/Clark-Hu/bookshelf/internal/bookinfo"
	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/repository"
)

const dateLayout = "2006-01-02"

type bookRequest struct {
	Title         string  `json:"title"`
	Author        *string `json:"author"`
	Description   *string `json:"description"`
	Content       *string `json:"content"`
	CoverURL      *string `json:"coverUrl"`
	Category      *string `json:"category"`
	Pages         *int    `json:"pages"`
	PriceCents    *int64  `json:"priceCents"`
	IsFree        *bool   `json:"isFree"`
	PublishedDate *string `json:"publishedDate"`
}

type bookListResponse struct {
	Items      []bookResponse `json:"items"`
	NextCursor *string        `json:"nextCursor,omitempty"`
}

type bookResponse struct {
	ID            string                  `json:"id"`
	Title         string                  `json:"title"`
	Author        string                  `json:"author"`
	Description   string                  `json:"description"`
	Content       string                  `json:"content,omitempty"`
	CoverURL      *string                 `json:"coverUrl,omitempty"`
	Category      string                  `json:"category"`
	Pages         *int                    `json:"pages,omitempty"`
	PriceCents    int64                   `json:"priceCents"`
	IsFree        bool                    `json:"isFree"`
	PublishedDate *string                 `json:"publishedDate,omitempty"`
	Rating        ratingAggregateResponse `json:"rating"`
	CreatedAt     time.Time               `json:"createdAt"`
	UpdatedAt     time.Time               `json:"updatedAt"`
}

type statsResponse struct {
	TotalBooks    int64   `json:"totalBooks"`
	TotalRatings  int64   `json:"totalRatings"`
	AverageRating float64 `json:"averageRating"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	filters, field, err := buildBookFilters(r.URL.Query())
	if err != nil {
		s.respondInvalidField(w, r, field)
		return
	}

	result, err := s.repo.Books.List(r.Context(), filters)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	items := make([]bookResponse, 0, len(result.Items))
	for _, book := range result.Items {
		resp := toBookResponse(book)
		resp.Content = ""
		items = append(items, resp)
	}
	s.respondJSON(w, http.StatusOK, bookListResponse{Items: items, NextCursor: result.NextCursor})
}

// buildBookFilters parses list query parameters. On failure it also returns
// the offending parameter name.
func buildBookFilters(query url.Values) (repository.BookListFilters, string, error) {
	var filters repository.BookListFilters

	if q := strings.TrimSpace(query.Get("q")); q != "" {
		filters.Query = &q
	}
	if val := strings.TrimSpace(query.Get("category")); val != "" {
		filters.Category = &val
	}
	if val := strings.TrimSpace(query.Get("free")); val != "" {
		free, err := strconv.ParseBool(val)
		if err != nil {
			return filters, "free", fmt.Errorf("invalid free value")
		}
		filters.Free = &free
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 0 {
			return filters, "limit", fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("cursor")); val != "" {
		cursor, err := repository.DecodeCursor(val)
		if err != nil {
			return filters, "cursor", fmt.Errorf("invalid cursor")
		}
		filters.Cursor = cursor
	}
	return filters, "", nil
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.repo.Books.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	fields, err := req.toFields()
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	fields = s.enrichWithBookInfo(r.Context(), fields)

	book, err := s.repo.Books.Create(r.Context(), fields)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	s.logger.Info("book created", zap.String("book_id", book.ID), zap.String("title", book.Title))
	w.Header().Set("Location", "/books/"+url.PathEscape(book.ID))
	s.respondJSON(w, http.StatusCreated, toBookResponse(book))
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	fields, err := req.toFields()
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	book, err := s.repo.Books.Update(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.Books.Delete(r.Context(), id); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.logger.Info("book deleted", zap.String("book_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Books.Stats(r.Context())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, statsResponse{
		TotalBooks:    stats.TotalBooks,
		TotalRatings:  stats.TotalRatings,
		AverageRating: stats.AverageRating,
	})
}

// enrichWithBookInfo fills fields the admin left empty. Upstream trouble never
// blocks the create.
func (s *Server) enrichWithBookInfo(ctx context.Context, fields repository.BookFields) repository.BookFields {
	timeout := time.Duration(s.cfg.BookInfoTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.bookInfo.Fetch(ctx, fields.Title)
	if err != nil {
		if !errors.Is(err, bookinfo.ErrNotFound) {
			s.logger.Warn("bookinfo fetch failed", zap.String("title", fields.Title), zap.Error(err))
		}
		return fields
	}
	if result == nil {
		return fields
	}

	if fields.Pages == nil {
		fields.Pages = result.Pages
	}
	if fields.Description == "" && result.Description != nil {
		fields.Description = *result.Description
	}
	if fields.CoverURL == nil {
		fields.CoverURL = result.CoverURL
	}
	if fields.Category == "" && result.Category != nil {
		fields.Category = *result.Category
	}
	if fields.PublishedDate == nil {
		fields.PublishedDate = result.PublishedDate
	}
	return fields
}

func invalidField(field string) error {
	return apperr.WithMetadata(apperr.CodeInvalidArgument, "invalid "+field, map[string]string{"Field": field})
}

// toFields validates the request and applies catalog defaults.
func (req bookRequest) toFields() (repository.BookFields, error) {
	fields := repository.BookFields{
		Title:       strings.TrimSpace(req.Title),
		Author:      domain.DefaultAuthor,
		Description: derefTrim(req.Description),
		Content:     derefString(req.Content),
		CoverURL:    normalizeStringPtr(req.CoverURL),
		Category:    derefTrim(req.Category),
		Pages:       req.Pages,
	}
	if fields.Title == "" {
		return fields, invalidField("title")
	}
	if author := derefTrim(req.Author); author != "" {
		fields.Author = author
	}
	if fields.CoverURL != nil {
		u, err := url.Parse(*fields.CoverURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fields, invalidField("coverUrl")
		}
	}
	if req.Pages != nil && *req.Pages <= 0 {
		return fields, invalidField("pages")
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return fields, invalidField("priceCents")
		}
		fields.PriceCents = *req.PriceCents
	}
	fields.IsFree = fields.PriceCents == 0
	if req.IsFree != nil {
		if *req.IsFree && fields.PriceCents > 0 {
			return fields, invalidField("isFree")
		}
		fields.IsFree = *req.IsFree
	}
	if raw := derefTrim(req.PublishedDate); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return fields, invalidField("publishedDate")
		}
		fields.PublishedDate = &d
	}
	return fields, nil
}

func toBookResponse(book domain.Book) bookResponse {
	resp := bookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Content:     book.Content,
		CoverURL:    book.CoverURL,
		Category:    book.Category,
		Pages:       book.Pages,
		PriceCents:  book.PriceCents,
		IsFree:      book.IsFree,
		Rating:      toAggregateResponse(book.Rating),
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
	if book.PublishedDate != nil {
		d := book.PublishedDate.Format(dateLayout)
		resp.PublishedDate = &d
	}
	return resp
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}

func derefTrim(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return strings.TrimSpace(*ptr)
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10.0
}
