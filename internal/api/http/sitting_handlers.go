package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/sitting"
)

type sittingView struct {
	ID             string `json:"id"`
	QuizID         string `json:"quiz_id"`
	UserID         string `json:"user_id"`
	Score          int    `json:"score"`
	Total          int    `json:"total"`
	Remaining      int    `json:"remaining"`
	PercentCorrect int    `json:"percent_correct"`
	PercentDone    int    `json:"percent_done"`
	Complete       bool   `json:"complete"`
	StartedAt      int64  `json:"started_at"`
	CompletedAt    int64  `json:"completed_at,omitempty"`
}

func viewOf(s *sitting.Sitting) sittingView {
	v := sittingView{
		ID:             s.ID,
		QuizID:         s.QuizID,
		UserID:         s.UserID,
		Score:          s.CurrentScore(),
		Total:          s.Total(),
		Remaining:      s.RemainingCount(),
		PercentCorrect: s.PercentCorrect(),
		PercentDone:    s.PercentDone(),
		Complete:       s.IsComplete(),
		StartedAt:      s.StartedAt.Unix(),
	}
	if s.CompletedAt != nil {
		v.CompletedAt = s.CompletedAt.Unix()
	}
	return v
}

// viewer is the user id used for ownership checks; roles that may see every
// sitting get "" which skips the check.
func viewer(r *http.Request) string {
	if rbac.Can(r.Context(), "sitting:view-all") {
		return ""
	}
	return auth.SubjectFromContext(r.Context())
}

// POST /take/{quizID}
func TakeQuizHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		s, err := svc.StartOrResume(r.Context(), sub, chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(s))
	}
}

// GET /sittings/{sittingID}/next
func NextQuestionHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		next, err := svc.NextQuestion(r.Context(), chi.URLParam(r, "sittingID"), sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, next)
	}
}

// POST /sittings/{sittingID}/answer {"answer_id": "..."}
func AnswerHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AnswerID string `json:"answer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.AnswerID == "" {
			http.Error(w, "answer_id required", http.StatusBadRequest)
			return
		}
		sub := auth.SubjectFromContext(r.Context())
		res, err := svc.Answer(r.Context(), chi.URLParam(r, "sittingID"), sub, req.AnswerID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /sittings/{sittingID}/give-up
func GiveUpHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := auth.SubjectFromContext(r.Context())
		sum, err := svc.GiveUp(r.Context(), chi.URLParam(r, "sittingID"), sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /sittings/{sittingID}
func GetSittingHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := svc.Get(r.Context(), chi.URLParam(r, "sittingID"), viewer(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		sum, err := svc.Summary(r.Context(), s)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sitting": viewOf(s), "summary": sum})
	}
}

// GET /sittings?quiz_id=...&user_id=...&complete=true&limit=50&offset=0
// Callers without sitting:view-all only ever see their own sittings.
func ListSittingsHandler(svc *sitting.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opts := sitting.ListOpts{
			QuizID: strings.TrimSpace(q.Get("quiz_id")),
			UserID: strings.TrimSpace(q.Get("user_id")),
			Limit:  parseIntDefault(q.Get("limit"), 50),
			Offset: parseIntDefault(q.Get("offset"), 0),
		}
		if v := q.Get("complete"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, "complete must be true or false", http.StatusBadRequest)
				return
			}
			opts.Complete = &b
		}
		if own := viewer(r); own != "" {
			opts.UserID = own
		}
		list, err := svc.List(r.Context(), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}
		out := make([]sittingView, 0, len(list))
		for _, s := range list {
			out = append(out, viewOf(s))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
