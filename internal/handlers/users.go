package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"net/url"

	"cacaowallet/internal/models"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	user, err := h.users.GetByUsername(r.Context(), username)
	h.respondUser(w, user, err)
}

func (h *Handler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid email")
		return
	}
	user, err := h.users.GetByEmail(r.Context(), email)
	h.respondUser(w, user, err)
}

func (h *Handler) respondUser(w http.ResponseWriter, user models.User, err error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to load user")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"created_at": user.CreatedAt,
	})
}
