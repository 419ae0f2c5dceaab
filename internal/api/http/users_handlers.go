package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/users"
)

// POST /users {"username": "...", "role": "student", "password": "..."}
func CreateUserHandler(st *users.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Role     string `json:"role"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Role == "" {
			req.Role = "student"
		}
		u, err := st.Create(r.Context(), req.Username, req.Role, req.Password)
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			http.Error(w, err.Error(), http.StatusConflict)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// GET /users?role=student
func ListUsersHandler(st *users.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := st.List(r.Context(), strings.TrimSpace(r.URL.Query().Get("role")))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
