package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
	"github.com/Clark-Hu/rating-disputes/internal/fanout"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
)

type notificationItemsResponse struct {
	Items []domain.Notification `json:"items"`
}

type notificationStreamsResponse struct {
	System []domain.Notification `json:"system"`
	Rating []domain.Notification `json:"rating"`
}

type notificationCreateRequest struct {
	RecipientRef string          `json:"recipientRef"`
	Type         string          `json:"type"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data,omitempty"`
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

// handleListNotifications serves the caller's mailbox. With ?stream= it
// returns that stream only, otherwise both streams side by side.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := repository.NotificationListFilters{
		RecipientRef: principal(r).UserID,
		UnreadOnly:   query.Get("unread") == "true",
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		s.respondDomainError(w, err, "list notifications")
		return
	}
	filters.Limit = limit

	if raw := strings.TrimSpace(query.Get("stream")); raw != "" {
		stream, ok := domain.ParseStream(raw)
		if !ok {
			s.respondDomainError(w, &domain.ValidationError{Fields: []string{"stream"}}, "list notifications")
			return
		}
		filters.Stream = &stream
	}

	items, err := s.repo.Notifications.List(r.Context(), filters)
	if err != nil {
		s.respondDomainError(w, err, "list notifications")
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	if filters.Stream != nil {
		s.respondJSON(w, http.StatusOK, notificationItemsResponse{Items: items})
		return
	}

	resp := notificationStreamsResponse{System: []domain.Notification{}, Rating: []domain.Notification{}}
	for _, n := range items {
		if n.Type.Stream() == domain.StreamRating {
			resp.Rating = append(resp.Rating, n)
		} else {
			resp.System = append(resp.System, n)
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	n, err := s.fanout.Notify(r.Context(), fanout.NotifyInput{
		RecipientRef: strings.TrimSpace(req.RecipientRef),
		Type:         domain.NotificationType(strings.TrimSpace(req.Type)),
		Message:      req.Message,
		Data:         req.Data,
	})
	if err != nil {
		s.respondDomainError(w, err, "create notification")
		return
	}
	s.respondJSON(w, http.StatusCreated, n)
}

func (s *Server) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.repo.Notifications.UnreadCount(r.Context(), principal(r).UserID)
	if err != nil {
		s.respondDomainError(w, err, "count unread notifications")
		return
	}
	s.respondJSON(w, http.StatusOK, unreadCountResponse{Count: count})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.repo.Notifications.MarkRead(r.Context(), id, principal(r).UserID)
	s.respondFlip(w, n, err, id, "mark notification read")
}

func (s *Server) handleMarkDisputed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.repo.Notifications.MarkDisputed(r.Context(), id, principal(r).UserID)
	s.respondFlip(w, n, err, id, "mark notification disputed")
}

func (s *Server) respondFlip(w http.ResponseWriter, n domain.Notification, err error, id, action string) {
	if errors.Is(err, repository.ErrNotFound) {
		err = &domain.NotFoundError{Kind: "notification", ID: id}
	}
	if err != nil {
		s.respondDomainError(w, err, action)
		return
	}
	s.respondJSON(w, http.StatusOK, n)
}
