package http

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/sitting"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

type Deps struct {
	Auth     *auth.AuthService
	Catalog  quiz.Catalog
	Sittings *sitting.Service
	Users    *users.Store
	DB       *sql.DB // readiness probe; optional

	CORSOrigins     []string
	EnableLocalAuth bool
	RequestTimeout  time.Duration
}

func NewRouter(d Deps) http.Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))
	}

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		// browsing
		pr.With(rbac.Require("catalog:view")).Get("/categories", ListCategoriesHandler(d.Catalog))
		pr.With(rbac.Require("catalog:view")).Get("/categories/{categoryID}", CategoryHandler(d.Catalog))
		pr.With(rbac.Require("catalog:view")).Get("/quizzes/{quizID}", GetQuizHandler(d.Catalog))

		// curation
		pr.With(rbac.Require("catalog:edit")).Post("/categories", CreateCategoryHandler(d.Catalog))
		pr.With(rbac.Require("catalog:edit")).Post("/questions", CreateQuestionHandler(d.Catalog))
		pr.With(rbac.Require("catalog:edit")).Post("/quizzes", CreateQuizHandler(d.Catalog))

		// taking
		pr.With(rbac.Require("sitting:take")).Post("/take/{quizID}", TakeQuizHandler(d.Sittings))
		pr.Route("/sittings", func(sr chi.Router) {
			sr.With(rbac.RequireAny("sitting:view-own", "sitting:view-all")).Get("/", ListSittingsHandler(d.Sittings))
			sr.With(rbac.RequireAny("sitting:view-own", "sitting:view-all")).Get("/{sittingID}", GetSittingHandler(d.Sittings))
			sr.With(rbac.Require("sitting:take")).Get("/{sittingID}/next", NextQuestionHandler(d.Sittings))
			sr.With(rbac.Require("sitting:take")).Post("/{sittingID}/answer", AnswerHandler(d.Sittings))
			sr.With(rbac.Require("sitting:take")).Post("/{sittingID}/give-up", GiveUpHandler(d.Sittings))
		})

		pr.With(rbac.Require("users:create")).Post("/users", CreateUserHandler(d.Users))
		pr.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.Users))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := d.DB.PingContext(ctx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
