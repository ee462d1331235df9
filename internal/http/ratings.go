package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
)

type ratingRequest struct {
	Rating *float64 `json:"rating"`
}

type ratingAggregateResponse struct {
	BookID  string  `json:"bookId,omitempty"`
	Average float64 `json:"average"`
	Rounded float64 `json:"rounded"`
	Count   int64   `json:"count"`
}

type ratingEventResponse struct {
	ID        string    `json:"id"`
	RaterID   string    `json:"raterId,omitempty"`
	Anonymous bool      `json:"anonymous"`
	Rating    float64   `json:"rating"`
	Replaces  string    `json:"replaces,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ratingEventsResponse struct {
	Items []ratingEventResponse `json:"items"`
}

func (s *Server) handleSubmitRating(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, r, err)
		return
	}
	if req.Rating == nil {
		s.respondInvalidField(w, r, "rating")
		return
	}

	agg, err := s.ledger.SubmitRating(r.Context(), ledger.Submission{
		ItemID:  chi.URLParam(r, "id"),
		Value:   *req.Rating,
		RaterID: strings.TrimSpace(r.Header.Get("X-Rater-Id")),
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, toAggregateResponse(agg))
}

func (s *Server) handleGetRating(w http.ResponseWriter, r *http.Request) {
	agg, err := s.ledger.GetAggregate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, toAggregateResponse(agg))
}

func (s *Server) handleListRatings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if val := strings.TrimSpace(r.URL.Query().Get("limit")); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			s.respondInvalidField(w, r, "limit")
			return
		}
		limit = n
	}

	events, err := s.ledger.Events(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	items := make([]ratingEventResponse, 0, len(events))
	for _, e := range events {
		items = append(items, ratingEventResponse{
			ID:        e.ID,
			RaterID:   e.RaterID,
			Anonymous: e.Anonymous(),
			Rating:    e.Value,
			Replaces:  e.Replaces,
			CreatedAt: e.CreatedAt,
		})
	}
	s.respondJSON(w, http.StatusOK, ratingEventsResponse{Items: items})
}

func toAggregateResponse(agg domain.RatingAggregate) ratingAggregateResponse {
	return ratingAggregateResponse{
		BookID:  agg.ItemID,
		Average: agg.Average,
		Rounded: roundToOneDecimal(agg.Average),
		Count:   agg.Count,
	}
}
