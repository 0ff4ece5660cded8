package http

import (
	"encoding/json"
	"net/http"

	"github.com/quizforge/quizforge-engine/internal/question"
)

// UpsertQuestionHandler writes a question into the bank: POST /questions.
// Comprehension parents reference children by id; the store-level invariant
// checks (correct index range, child list presence) reject bad payloads.
func UpsertQuestionHandler(qs question.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q question.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := q.Validate(); err != nil {
			badRequest(w, err.Error())
			return
		}
		if err := qs.Put(r.Context(), q); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

// CountQuestionsHandler reports pool size for a module+org scope:
// GET /questions/count?module=&org=.
func CountQuestionsHandler(qs question.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := question.Filter{
			Module: r.URL.Query().Get("module"),
			OrgID:  r.URL.Query().Get("org"),
		}
		n, err := qs.CountMatching(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": n})
	}
}
