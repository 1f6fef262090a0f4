package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/vaidashi/gallery-api/internal/models"
)

type notificationList struct {
	Items       []*models.Notification `json:"items"`
	UnreadCount int                    `json:"unreadCount"`
}

// listNotificationsHandler returns the admin inbox, newest first
func (s *Server) listNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 50
	}

	items, err := s.deps.Notifications.List(r.Context(), unreadOnly, limit)
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	unread, err := s.deps.Notifications.CountUnread(r.Context())
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    notificationList{Items: items, UnreadCount: unread},
	})
}

func (s *Server) markNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.deps.Notifications.MarkRead(r.Context(), id); err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"id": id}})
}

func (s *Server) markAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.MarkAllRead(r.Context())
	if err != nil {
		s.respondWithAppError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]int64{"updated": n}})
}
