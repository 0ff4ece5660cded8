package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	auth "github.com/quizforge/quizforge-engine/internal/auth/middleware"
	"github.com/quizforge/quizforge-engine/internal/exam"
)

var validate = validator.New()

// SampleBounds clamps learner-facing sample sizes.
type SampleBounds struct {
	Min int
	Max int
}

func (b SampleBounds) clamp(n int) int {
	if n < b.Min {
		return b.Min
	}
	if n > b.Max {
		return b.Max
	}
	return n
}

type composeRequest struct {
	Mode        string   `json:"mode" validate:"required,oneof=sample assign"`
	Count       int      `json:"count" validate:"omitempty,min=1"`
	Module      string   `json:"module"`
	Org         string   `json:"org"`
	UserID      string   `json:"userId"`
	QuestionIDs []string `json:"questionIds"`
	ParentID    string   `json:"parentId"`
	Users       []string `json:"users"`
	TTLSec      int64    `json:"ttlSec" validate:"omitempty,min=0"`
}

// ComposeExamHandler creates persisted exam instances: POST /exams.
func ComposeExamHandler(c *exam.Composer, bounds SampleBounds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req composeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		ttl := time.Duration(req.TTLSec) * time.Second
		switch req.Mode {
		case "sample":
			inst, err := c.ComposeSample(r.Context(), exam.SampleSpec{
				Count:   bounds.clamp(req.Count),
				Module:  req.Module,
				OrgID:   req.Org,
				UserID:  req.UserID,
				TTL:     ttl,
				Persist: true,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, inst)
		case "assign":
			if len(req.QuestionIDs) == 0 && req.ParentID == "" {
				badRequest(w, "assign mode requires questionIds or parentId")
				return
			}
			if len(req.Users) == 0 {
				badRequest(w, "assign mode requires users")
				return
			}
			insts, err := c.ComposeAssigned(r.Context(), exam.AssignSpec{
				QuestionIDs: req.QuestionIDs,
				ParentID:    req.ParentID,
				Users:       req.Users,
				Module:      req.Module,
				OrgID:       req.Org,
				TTL:         ttl,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, insts)
		}
	}
}

// GetExamHandler serves the learner view: GET /exam?examId=<id> renders a
// persisted instance; GET /exam?count=&module=&org= samples an ephemeral
// one (examId absent in the response, nothing persisted).
func GetExamHandler(rd *exam.Renderer, c *exam.Composer, bounds SampleBounds) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("examId"); id != "" {
			serveView(w, r, rd, id)
			return
		}
		count, err := strconv.Atoi(r.URL.Query().Get("count"))
		if err != nil {
			badRequest(w, "examId or count required")
			return
		}
		inst, err := c.ComposeSample(r.Context(), exam.SampleSpec{
			Count:  bounds.clamp(count),
			Module: r.URL.Query().Get("module"),
			OrgID:  r.URL.Query().Get("org"),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		view, err := rd.RenderInstance(r.Context(), inst)
		if err != nil {
			writeError(w, err)
			return
		}
		view.ExamID = "" // pure sampling, nothing to submit against
		writeJSON(w, http.StatusOK, view)
	}
}

// GetExamByIDHandler is the path-param variant: GET /exams/{examID}.
func GetExamByIDHandler(rd *exam.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveView(w, r, rd, chi.URLParam(r, "examID"))
	}
}

func serveView(w http.ResponseWriter, r *http.Request, rd *exam.Renderer, id string) {
	view, err := rd.Render(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if view.Expired {
		// metadata only; the series is withheld and submission will be
		// rejected with the same condition
		writeJSON(w, http.StatusGone, exam.LearnerView{
			ExamID:    view.ExamID,
			Series:    []exam.Block{},
			ExpiresAt: view.ExpiresAt,
			Expired:   true,
			Finished:  view.Finished,
		})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type submitRequest struct {
	ExamID  string                 `json:"examId" validate:"required"`
	Answers []exam.SubmittedAnswer `json:"answers" validate:"required,dive"`
}

// SubmitExamHandler scores a submission: POST /exam/submit.
func SubmitExamHandler(s *exam.Scorer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			badRequest(w, err.Error())
			return
		}
		userID := ""
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			userID = claims.Sub
		}
		report, err := s.Score(r.Context(), req.ExamID, userID, req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// LatestAttemptHandler serves admin review lookups: GET /attempts/latest
// by examId, or by userId+org+module when no instance id is at hand.
func LatestAttemptHandler(as exam.AttemptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if examID := q.Get("examId"); examID != "" {
			a, err := as.FindLatestByExam(r.Context(), examID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, a)
			return
		}
		userID := q.Get("userId")
		if userID == "" {
			badRequest(w, "examId or userId required")
			return
		}
		a, err := as.FindLatestByUserOrgModule(r.Context(), userID, q.Get("org"), q.Get("module"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}
