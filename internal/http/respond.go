package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/Clark-Hu/bookshelf/internal/apperr"
	"github.com/Clark-Hu/bookshelf/internal/domain"
	"github.com/Clark-Hu/bookshelf/internal/i18n"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    apperr.Code  `json:"code"`
	Message string       `json:"message"`
	Class   apperr.Class `json:"class"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Warn("failed to encode response", zap.Error(err))
		}
	}
}

func (s *Server) locale(r *http.Request) i18n.Locale {
	return s.translator.Negotiate(r.Header.Get("Accept-Language"), r.URL.Query().Get("lang"))
}

// respondError renders a localized error body for an explicit message key.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code apperr.Code, key i18n.Key, metadata map[string]string) {
	loc := s.locale(r)
	w.Header().Set("Content-Language", string(loc))
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: s.translator.Message(loc, key, metadata),
		Class:   code.Class(),
	})
}

func (s *Server) respondUnauthorized(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, http.StatusUnauthorized, apperr.CodeUnauthorized, i18n.KeyUnauthorized, nil)
}

func (s *Server) respondInvalidField(w http.ResponseWriter, r *http.Request, field string) {
	s.respondError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidArgument, i18n.KeyInvalidField,
		map[string]string{"Field": field})
}

// respondAppError maps any error from the lower layers onto a status and a
// localized message. Errors without a code are treated as store failures.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		code     apperr.Code
		metadata map[string]string
	)
	if appErr, ok := apperr.As(err); ok {
		code = appErr.Code
		metadata = appErr.Metadata
	} else if errors.Is(err, domain.ErrNotFound) {
		code = apperr.CodeNotFound
	} else {
		code = apperr.CodePersistence
	}

	if code.Class() == apperr.ClassUnavailable {
		s.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}

	key := i18n.KeyFor(code)
	if code == apperr.CodeInvalidArgument && metadata["Field"] != "" {
		key = i18n.KeyInvalidField
	}
	s.respondError(w, r, code.HTTPStatus(), code, key, metadata)
}

func (s *Server) respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidArgument, i18n.KeyMalformedJSON, nil)
	case errors.As(err, &typeError):
		s.respondInvalidField(w, r, typeError.Field)
	case errors.Is(err, io.EOF):
		s.respondError(w, r, http.StatusUnprocessableEntity, apperr.CodeInvalidArgument, i18n.KeyEmptyBody, nil)
	case errors.As(err, &maxBytesError):
		s.respondError(w, r, http.StatusRequestEntityTooLarge, apperr.CodeInvalidArgument, i18n.KeyInvalidArgument, nil)
	default:
		s.respondError(w, r, http.StatusBadRequest, apperr.CodeInvalidArgument, i18n.KeyInvalidArgument, nil)
	}
}
