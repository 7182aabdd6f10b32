package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

const maxRequestBody = 1 << 20 // 1 MiB

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func newID() string {
	return uuid.NewString()
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

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: fmt.Sprintf("Invalid value for field %s", typeError.Field),
			Details: []string{typeError.Field},
		})
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// respondDomainError maps the domain error taxonomy onto status codes. Any
// other error is logged and reported as an internal error.
func (s *Server) respondDomainError(w http.ResponseWriter, err error, action string) {
	var (
		validation *domain.ValidationError
		already    *domain.AlreadyDisputedError
		invalid    *domain.InvalidStateError
		notFound   *domain.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		s.respondJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    "VALIDATION_ERROR",
			Message: validation.Error(),
			Details: validation.Fields,
		})
	case errors.As(err, &already):
		s.respondJSON(w, http.StatusConflict, errorResponse{
			Code:    "ALREADY_DISPUTED",
			Message: "You have already disputed this rating",
			Details: map[string]string{"ratingRef": already.RatingRef, "disputedByRef": already.DisputedByRef},
		})
	case errors.As(err, &invalid):
		s.respondJSON(w, http.StatusConflict, errorResponse{
			Code:    "INVALID_STATE",
			Message: invalid.Error(),
			Details: map[string]string{"disputeId": invalid.DisputeID, "status": string(invalid.Status)},
		})
	case errors.As(err, &notFound):
		s.respondJSON(w, http.StatusNotFound, errorResponse{
			Code:    "NOT_FOUND",
			Message: "Resource not found",
			Details: map[string]string{"kind": notFound.Kind, "id": notFound.ID},
		})
	default:
		s.logger.Error(action+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action)
	}
}

// parseLimit reads an optional positive limit query parameter.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &domain.ValidationError{Fields: []string{"limit"}}
	}
	return limit, nil
}
