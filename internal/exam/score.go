package exam

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/quizforge-engine/internal/question"
)

// Scorer replays an instance's stored shuffle over a learner submission.
// Policy notes (see DESIGN.md): a second submission after FinishedAt is set
// is rejected with ErrAlreadySubmitted; a question that no longer resolves
// in the store still counts in the denominator and is marked wrong.
type Scorer struct {
	questions     question.Store
	instances     InstanceStore
	attempts      AttemptStore
	passThreshold int
	now           func() time.Time
}

func NewScorer(qs question.Store, is InstanceStore, as AttemptStore, passThreshold int) *Scorer {
	return &Scorer{questions: qs, instances: is, attempts: as, passThreshold: passThreshold, now: time.Now}
}

// Score grades a submission against the stored instance. Answers may arrive
// in any order; items missing from the submission count as wrong. One bad
// answer never aborts scoring of the rest.
func (s *Scorer) Score(ctx context.Context, examID, userID string, submitted []SubmittedAnswer) (*ScoreReport, error) {
	inst, err := s.instances.GetInstance(ctx, examID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if inst.Expired(now) {
		return nil, ErrExamExpired
	}
	if inst.Finished() {
		return nil, ErrAlreadySubmitted
	}

	report := s.grade(ctx, inst, submitted)

	if userID == "" {
		userID = inst.AssignedUserID
	}
	attempt := &Attempt{
		ID:          uuid.NewString(),
		UserID:      userID,
		OrgID:       inst.OrgID,
		Module:      inst.Module,
		ExamID:      inst.ID,
		Status:      StatusSubmitted,
		QuestionIDs: inst.QuestionIDs(),
		Answers:     report.Details,
		Score:       report.Score,
		MaxScore:    report.Total,
		Percentage:  report.Percentage,
		Passed:      report.Passed,
		StartedAt:   inst.CreatedAt,
		FinishedAt:  now.Unix(),
	}
	if prev, err := s.attempts.FindLatestByExam(ctx, examID); err == nil {
		attempt.ID = prev.ID
		attempt.StartedAt = prev.StartedAt
	}
	if _, err := s.attempts.CreateOrUpdate(ctx, attempt); err != nil {
		return nil, fmt.Errorf("persist attempt: %w", err)
	}
	if err := s.instances.MarkFinished(ctx, examID, now.Unix()); err != nil {
		return nil, fmt.Errorf("finish instance: %w", err)
	}
	return report, nil
}

// grade is the pure scoring pass: deterministic for a fixed
// (instance, submission) pair.
func (s *Scorer) grade(ctx context.Context, inst *ExamInstance, submitted []SubmittedAnswer) *ScoreReport {
	mappings := make(map[string][]int, len(inst.Sequence))
	order := inst.QuestionIDs()
	for i, tok := range inst.Sequence {
		if tok.Kind != TokenQuestion {
			continue
		}
		if _, ok := mappings[tok.ID]; !ok && i < len(inst.ChoiceMapping) {
			mappings[tok.ID] = inst.ChoiceMapping[i]
		}
	}

	shown := make(map[string]int, len(submitted))
	for _, ans := range submitted {
		if _, dup := shown[ans.QuestionID]; dup {
			continue // first answer for an id wins
		}
		shown[ans.QuestionID] = ans.ChoiceIndex
	}
	// answers for ids outside the sequence are still graded, with the shown
	// index taken as canonical (no mapping to replay)
	extra := make([]string, 0)
	for _, ans := range submitted {
		if _, ok := mappings[ans.QuestionID]; !ok {
			if !containsID(extra, ans.QuestionID) {
				extra = append(extra, ans.QuestionID)
			}
		}
	}
	all := append(append([]string{}, order...), extra...)

	byID := s.resolve(ctx, all)
	report := &ScoreReport{
		ExamID:        inst.ID,
		PassThreshold: s.passThreshold,
		Details:       make([]Answer, 0, len(all)),
	}
	for _, id := range all {
		detail := Answer{QuestionID: id, ShownIndex: -1, CanonicalIndex: -1, CorrectIndex: -1}
		q, resolvable := byID[id]
		if resolvable {
			detail.CorrectIndex = q.CorrectIndex
		}
		if idx, answered := shown[id]; answered {
			detail.ShownIndex = idx
			detail.CanonicalIndex = s.canonicalize(id, idx, mappings[id], q, resolvable)
		}
		detail.Correct = detail.CorrectIndex >= 0 && detail.CanonicalIndex >= 0 &&
			detail.CorrectIndex == detail.CanonicalIndex
		if detail.Correct {
			report.Score++
		}
		report.Details = append(report.Details, detail)
	}
	report.Total = len(all)
	denom := report.Total
	if denom < 1 {
		denom = 1
	}
	report.Percentage = int(math.Round(100 * float64(report.Score) / float64(denom)))
	report.Passed = report.Percentage >= s.passThreshold
	return report
}

// canonicalize maps a display index back to the canonical choice index.
// Missing mapping: the shown index is taken as already canonical. Malformed
// mapping (length disagrees with live choices): same fallback, logged.
// Shown index out of the mapping's range: unanswered.
func (s *Scorer) canonicalize(id string, idx int, m []int, q question.Question, resolvable bool) int {
	if len(m) == 0 {
		if idx < 0 {
			return -1
		}
		return idx
	}
	if resolvable && len(m) != len(q.Choices) {
		log.Printf("score: malformed mapping for %s (have %d, want %d), treating shown index as canonical", id, len(m), len(q.Choices))
		if idx < 0 || idx >= len(q.Choices) {
			return -1
		}
		return idx
	}
	if idx < 0 || idx >= len(m) {
		return -1
	}
	return m[idx]
}

func (s *Scorer) resolve(ctx context.Context, ids []string) map[string]question.Question {
	qs, err := s.questions.FindByIDs(ctx, ids)
	if err != nil {
		// degraded: every item grades as unresolvable rather than failing
		// the whole submission
		log.Printf("score: resolve questions: %v", err)
		return map[string]question.Question{}
	}
	byID := make(map[string]question.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	return byID
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
