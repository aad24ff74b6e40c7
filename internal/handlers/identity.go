package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adi-253/chatfeed/internal/models"
	"github.com/adi-253/chatfeed/internal/services"
	"github.com/go-chi/chi/v5"
)

// UserHeader carries the viewer's user ID. The dev backend trusts it as is.
const UserHeader = "X-User-ID"

type ctxKey struct{}

// Identify stores the X-User-ID of the request in its context.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := models.ParseID(r.Header.Get(UserHeader))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, uid)))
	})
}

// RequireUser rejects requests without a user ID.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userFrom(r) <= 0 {
			http.Error(w, "user ID is required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userFrom(r *http.Request) models.ID {
	uid, _ := r.Context().Value(ctxKey{}).(models.ID)
	return uid
}

// idParam reads a positive integer URL parameter.
func idParam(r *http.Request, name string) (models.ID, bool) {
	id := models.ParseID(chi.URLParam(r, name))
	return id, id > 0
}

// writeError maps service errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, services.ErrEmptyBody):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
