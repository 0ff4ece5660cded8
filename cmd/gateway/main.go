package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	api "github.com/quizforge/quizforge-engine/internal/api/http"
	auth "github.com/quizforge/quizforge-engine/internal/auth/middleware"
	"github.com/quizforge/quizforge-engine/internal/config"
	"github.com/quizforge/quizforge-engine/internal/db"
	"github.com/quizforge/quizforge-engine/internal/exam"
	"github.com/quizforge/quizforge-engine/internal/question"
	"github.com/quizforge/quizforge-engine/internal/rbac"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	questions := question.NewSQLStore(dbh)
	instances := exam.NewCachedInstanceStore(exam.NewSQLInstanceStore(dbh), cfg.InstanceCacheTTL)
	attempts := exam.NewSQLAttemptStore(dbh)

	composer := exam.NewComposer(questions, instances, attempts)
	renderer := exam.NewRenderer(questions, instances)
	scorer := exam.NewScorer(questions, instances, attempts, cfg.PassThreshold)
	bounds := api.SampleBounds{Min: cfg.SampleMin, Max: cfg.SampleMax}

	// --- Auth (local HMAC JWT) ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	verify := func(username, password string) (string, string, bool) {
		if username == cfg.AdminUser &&
			bcrypt.CompareHashAndPassword([]byte(cfg.AdminPassHash), []byte(password)) == nil {
			return "admin", "", true
		}
		return "", "", false
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, verify))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.With(rbac.Require("question:write")).
			Post("/questions", api.UpsertQuestionHandler(questions))
		pr.With(rbac.RequireAny("question:write", "exam:compose")).
			Get("/questions/count", api.CountQuestionsHandler(questions))

		pr.With(rbac.Require("exam:compose")).
			Post("/exams", api.ComposeExamHandler(composer, bounds))
		pr.With(rbac.Require("exam:view")).
			Get("/exam", api.GetExamHandler(renderer, composer, bounds))
		pr.With(rbac.Require("exam:view")).
			Get("/exams/{examID}", api.GetExamByIDHandler(renderer))
		pr.With(rbac.Require("exam:submit")).
			Post("/exam/submit", api.SubmitExamHandler(scorer))

		pr.With(rbac.Require("attempt:review")).
			Get("/attempts/latest", api.LatestAttemptHandler(attempts))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
