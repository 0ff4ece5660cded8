package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/quizforge/quizforge-engine/internal/exam"
	"github.com/quizforge/quizforge-engine/internal/question"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

// writeError translates the engine's failure taxonomy to status codes.
// Degraded-but-completed outcomes never reach here; they return 200 with
// partial data.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exam.ErrExamNotFound),
		errors.Is(err, exam.ErrNoQuestionsAvailable),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, question.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, exam.ErrExamExpired):
		writeJSON(w, http.StatusGone, errorBody{Error: err.Error()})
	case errors.Is(err, exam.ErrAlreadySubmitted):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		log.Printf("api: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}
