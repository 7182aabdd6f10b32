package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/rating-disputes/internal/dispute"
	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

type disputeCreateRequest struct {
	RatingRef     string          `json:"ratingRef"`
	RatingType    string          `json:"ratingType"`
	Categories    json.RawMessage `json:"categories"`
	Reason        string          `json:"reason"`
	ReasonType    string          `json:"reasonType"`
	RatedByRef    string          `json:"ratedByRef"`
	DisputedByRef string          `json:"disputedByRef,omitempty"`
}

type disputeCreateResponse struct {
	ID     string               `json:"id"`
	Status domain.DisputeStatus `json:"status"`
}

type disputeListResponse struct {
	Items      []domain.Dispute `json:"items"`
	NextCursor *string          `json:"nextCursor,omitempty"`
}

type disputeStatusRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleCreateDispute(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)

	var req disputeCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.DisputedByRef != "" && req.DisputedByRef != caller.UserID {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Disputes can only be filed for yourself")
		return
	}

	categories, err := domain.ParseCategories(req.Categories)
	if err != nil {
		s.respondDomainError(w, err, "create dispute")
		return
	}

	id, err := s.disputes.CreateDispute(r.Context(), dispute.CreateInput{
		RatingRef:     req.RatingRef,
		RatingType:    domain.RatingType(strings.ToLower(strings.TrimSpace(req.RatingType))),
		Categories:    categories,
		Reason:        req.Reason,
		ReasonType:    domain.ReasonType(strings.TrimSpace(req.ReasonType)),
		DisputedByRef: caller.UserID,
		RatedByRef:    req.RatedByRef,
	})
	if err != nil {
		s.respondDomainError(w, err, "create dispute")
		return
	}
	s.respondJSON(w, http.StatusCreated, disputeCreateResponse{ID: id, Status: domain.StatusPending})
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := domain.DisputeStatus(strings.ToLower(strings.TrimSpace(query.Get("status"))))
	if status == "" {
		status = domain.StatusPending
	} else if status == "all" {
		status = ""
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		s.respondDomainError(w, err, "list disputes")
		return
	}

	result, err := s.disputes.ListByStatus(r.Context(), status, dispute.Page{Limit: limit, Cursor: query.Get("cursor")})
	if err != nil {
		s.respondDomainError(w, err, "list disputes")
		return
	}
	s.respondJSON(w, http.StatusOK, disputeListResponse{Items: result.Items, NextCursor: result.NextCursor})
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	caller := principal(r)
	d, err := s.disputes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, err, "get dispute")
		return
	}
	if !caller.CanModerate() && d.DisputedByRef != caller.UserID {
		s.respondError(w, http.StatusForbidden, "FORBIDDEN", "Not allowed to view this dispute")
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateDisputeStatus(w http.ResponseWriter, r *http.Request) {
	var req disputeStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	d, err := s.disputes.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Action, principal(r).UserID)
	if err != nil {
		s.respondDomainError(w, err, "update dispute status")
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}
