package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /categories
func ListCategoriesHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := cat.ListCategories(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /categories/{categoryID}
func CategoryHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "categoryID")
		c, err := cat.GetCategory(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		quizzes, err := cat.ListQuizzes(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"category": c, "quizzes": quizzes})
	}
}

// GET /quizzes/{quizID}
func GetQuizHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qz, err := cat.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, qz)
	}
}

// POST /categories {"name": "...", "parent_id": "..."}
func CreateCategoryHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c quiz.Category
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		saved, err := cat.PutCategory(r.Context(), c)
		if errors.Is(err, quiz.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

// POST /questions
func CreateQuestionHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q quiz.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(q.Content) == "" || len(q.Answers) == 0 {
			http.Error(w, "content and answers required", http.StatusBadRequest)
			return
		}
		saved, err := cat.PutQuestion(r.Context(), q)
		if errors.Is(err, quiz.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	}
}

// POST /quizzes
// A quiz without questions is accepted; the response carries a warning.
func CreateQuizHandler(cat quiz.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var qz quiz.Quiz
		if err := json.NewDecoder(r.Body).Decode(&qz); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		verr := qz.Validate()
		if verr != nil && !errors.Is(verr, quiz.ErrEmptyQuiz) {
			http.Error(w, verr.Error(), http.StatusBadRequest)
			return
		}
		saved, err := cat.PutQuiz(r.Context(), qz)
		if errors.Is(err, quiz.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := struct {
			quiz.Quiz
			Warning string `json:"warning,omitempty"`
		}{Quiz: saved}
		if verr != nil {
			resp.Warning = verr.Error()
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}
