package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
)

const maxCommentLength = 2000

type ratingCreateRequest struct {
	RatedEntityRef string          `json:"ratedEntityRef"`
	EntityType     string          `json:"entityType"`
	Categories     json.RawMessage `json:"categories"`
	Comment        *string         `json:"comment,omitempty"`
}

type ratingResponse struct {
	ID             string            `json:"id"`
	RatedByRef     string            `json:"ratedByRef"`
	RatedEntityRef string            `json:"ratedEntityRef"`
	EntityType     domain.EntityType `json:"entityType"`
	Categories     []domain.Category `json:"categories"`
	Comment        *string           `json:"comment,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

func newRatingResponse(r domain.Rating) ratingResponse {
	return ratingResponse{
		ID:             r.ID,
		RatedByRef:     r.RatedByRef,
		RatedEntityRef: r.RatedEntityRef,
		EntityType:     r.EntityType,
		Categories:     r.Categories,
		Comment:        r.Comment,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *Server) handleCreateRating(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)

	var req ratingCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	var bad []string
	entityRef := strings.TrimSpace(req.RatedEntityRef)
	if entityRef == "" || entityRef == caller.UserID {
		bad = append(bad, "ratedEntityRef")
	}
	entityType := domain.EntityType(strings.ToLower(strings.TrimSpace(req.EntityType)))
	if !entityType.Valid() {
		bad = append(bad, "entityType")
	}
	categories, err := domain.ParseCategories(req.Categories)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		bad = append(bad, verr.Fields...)
	}
	var comment *string
	if req.Comment != nil {
		trimmed := strings.TrimSpace(*req.Comment)
		if len(trimmed) > maxCommentLength {
			bad = append(bad, "comment")
		} else if trimmed != "" {
			comment = &trimmed
		}
	}
	if len(bad) > 0 {
		s.respondDomainError(w, &domain.ValidationError{Fields: bad}, "create rating")
		return
	}

	rating, err := s.repo.Ratings.Create(r.Context(), repository.RatingCreateParams{
		ID:             s.idGen(),
		RatedByRef:     caller.UserID,
		RatedEntityRef: entityRef,
		EntityType:     entityType,
		Categories:     categories,
		Comment:        comment,
	})
	if err != nil {
		s.respondDomainError(w, err, "create rating")
		return
	}

	s.fanout.RatingCreated(r.Context(), rating)
	s.respondJSON(w, http.StatusCreated, newRatingResponse(rating))
}
