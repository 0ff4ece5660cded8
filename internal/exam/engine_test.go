package exam_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/quizforge/quizforge-engine/internal/exam"
	"github.com/quizforge/quizforge-engine/internal/question"
)

type engine struct {
	questions question.Store
	instances exam.InstanceStore
	attempts  exam.AttemptStore
	composer  *exam.Composer
	renderer  *exam.Renderer
	scorer    *exam.Scorer
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	qs := question.NewInMemoryStore()
	is := exam.NewInMemoryInstanceStore()
	as := exam.NewInMemoryAttemptStore()
	return &engine{
		questions: qs,
		instances: is,
		attempts:  as,
		composer:  exam.NewComposer(qs, is, as),
		renderer:  exam.NewRenderer(qs, is),
		scorer:    exam.NewScorer(qs, is, as, 60),
	}
}

func standalone(id, module string, choices []string, correct int) question.Question {
	return question.Question{
		ID:           id,
		Variant:      question.VariantStandalone,
		Text:         "prompt " + id,
		Choices:      choices,
		CorrectIndex: correct,
		Module:       module,
	}
}

func (e *engine) seed(t *testing.T, qs ...question.Question) {
	t.Helper()
	for _, q := range qs {
		if err := e.questions.Put(context.Background(), q); err != nil {
			t.Fatalf("seed %s: %v", q.ID, err)
		}
	}
}

// correctDisplayIndex finds where a question's correct choice landed in the
// rendered (display-order) block.
func correctDisplayIndex(t *testing.T, b exam.Block, q question.Question) int {
	t.Helper()
	want := q.Choices[q.CorrectIndex]
	for i, c := range b.Choices {
		if c.Text == want {
			return i
		}
	}
	t.Fatalf("question %s: correct choice %q not shown", q.ID, want)
	return -1
}

func findBlock(series []exam.Block, id string) (exam.Block, bool) {
	for _, b := range series {
		if b.ID == id {
			return b, true
		}
		for _, c := range b.Children {
			if c.ID == id {
				return c, true
			}
		}
	}
	return exam.Block{}, false
}

func TestComposeRenderScoreRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	pool := []question.Question{
		standalone("q1", "math", []string{"2", "3", "4", "5"}, 1),
		standalone("q2", "math", []string{"red", "green", "blue", "cyan"}, 0),
		standalone("q3", "math", []string{"north", "south", "east", "west"}, 3),
	}
	e.seed(t, pool...)

	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{
		Count: 3, Module: "math", UserID: "u1", Persist: true,
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(inst.Sequence) != 3 || len(inst.ChoiceMapping) != 3 {
		t.Fatalf("sequence/mapping lengths: %d/%d", len(inst.Sequence), len(inst.ChoiceMapping))
	}

	view, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(view.Series) != 3 {
		t.Fatalf("series length: got %d, want 3", len(view.Series))
	}
	for _, b := range view.Series {
		if len(b.Choices) != 4 {
			t.Fatalf("block %s: %d choices shown, want 4", b.ID, len(b.Choices))
		}
	}

	var answers []exam.SubmittedAnswer
	for _, q := range pool {
		b, ok := findBlock(view.Series, q.ID)
		if !ok {
			t.Fatalf("question %s missing from view", q.ID)
		}
		answers = append(answers, exam.SubmittedAnswer{
			QuestionID:  q.ID,
			ChoiceIndex: correctDisplayIndex(t, b, q),
		})
	}

	report, err := e.scorer.Score(ctx, inst.ID, "u1", answers)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if report.Score != 3 || report.Total != 3 || report.Percentage != 100 || !report.Passed {
		t.Fatalf("report: score=%d total=%d pct=%d passed=%v", report.Score, report.Total, report.Percentage, report.Passed)
	}

	a, err := e.attempts.FindLatestByExam(ctx, inst.ID)
	if err != nil {
		t.Fatalf("attempt lookup: %v", err)
	}
	if a.Status != exam.StatusSubmitted || a.Score != 3 || !a.Passed {
		t.Fatalf("attempt: status=%s score=%d passed=%v", a.Status, a.Score, a.Passed)
	}
	if len(a.Answers) != 3 {
		t.Fatalf("attempt detail rows: got %d, want 3", len(a.Answers))
	}
	for _, d := range a.Answers {
		if !d.Correct || d.CanonicalIndex != d.CorrectIndex {
			t.Fatalf("answer detail %s: %+v", d.QuestionID, d)
		}
	}
}

func TestComprehensionShapeAndOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t,
		standalone("c1", "reading", []string{"yes", "no"}, 0),
		standalone("c2", "reading", []string{"spring", "summer", "fall"}, 2),
		question.Question{
			ID:       "p1",
			Variant:  question.VariantComprehension,
			Text:     "The Long Winter",
			Passage:  "It was a long winter...",
			ChildIDs: []string{"c1", "c2"},
			Module:   "reading",
		},
	)

	insts, err := e.composer.ComposeAssigned(ctx, exam.AssignSpec{
		ParentID: "p1", Users: []string{"u1"}, Module: "reading",
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	inst := insts[0]
	if len(inst.Sequence) != 3 {
		t.Fatalf("sequence length: got %d, want 3 (marker + 2 children)", len(inst.Sequence))
	}
	if inst.Sequence[0].Kind != exam.TokenParent || inst.Sequence[0].ID != "p1" {
		t.Fatalf("first token: %+v", inst.Sequence[0])
	}
	if len(inst.ChoiceMapping[0]) != 0 {
		t.Fatalf("parent marker mapping should be empty, got %v", inst.ChoiceMapping[0])
	}
	if inst.Sequence[1].ID != "c1" || inst.Sequence[2].ID != "c2" {
		t.Fatalf("child order not preserved: %+v", inst.Sequence)
	}

	for i := 0; i < 5; i++ {
		view, err := e.renderer.Render(ctx, inst.ID)
		if err != nil {
			t.Fatalf("render #%d: %v", i, err)
		}
		if len(view.Series) != 1 {
			t.Fatalf("series length: got %d, want 1", len(view.Series))
		}
		block := view.Series[0]
		if block.Type != exam.BlockComprehension || block.Passage == "" {
			t.Fatalf("comprehension block: %+v", block)
		}
		if len(block.Children) != 2 || block.Children[0].ID != "c1" || block.Children[1].ID != "c2" {
			t.Fatalf("children order: %+v", block.Children)
		}
	}
}

func TestRenderIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t,
		standalone("q1", "m", []string{"a", "b", "c", "d"}, 2),
		standalone("q2", "m", []string{"w", "x", "y", "z"}, 0),
	)
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 2, Module: "m", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}

	v1, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render 1: %v", err)
	}
	v2, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render 2: %v", err)
	}
	j1, _ := json.Marshal(v1)
	j2, _ := json.Marshal(v2)
	if string(j1) != string(j2) {
		t.Fatalf("renders differ:\n%s\n%s", j1, j2)
	}
}

func TestRenderNeverLeaksAnswers(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b", "c"}, 1))
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 1, Module: "m", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	view, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	j, _ := json.Marshal(view)
	for _, leak := range []string{"correct_index", "correctIndex", "answerIndex"} {
		if strings.Contains(string(j), leak) {
			t.Fatalf("learner view leaks %q: %s", leak, j)
		}
	}
}

func TestGracefulDegradationDeletedChild(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t,
		standalone("c1", "r", []string{"a", "b"}, 0),
		standalone("c2", "r", []string{"c", "d"}, 1),
		question.Question{
			ID: "p1", Variant: question.VariantComprehension,
			Text: "Passage", Passage: "text", ChildIDs: []string{"c1", "c2"}, Module: "r",
		},
	)
	insts, err := e.composer.ComposeAssigned(ctx, exam.AssignSpec{ParentID: "p1", Users: []string{"u1"}})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if err := e.questions.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	view, err := e.renderer.Render(ctx, insts[0].ID)
	if err != nil {
		t.Fatalf("render after delete: %v", err)
	}
	if len(view.Series) != 1 {
		t.Fatalf("series length: %d", len(view.Series))
	}
	children := view.Series[0].Children
	if len(children) != 1 || children[0].ID != "c2" {
		t.Fatalf("deleted child should be omitted, got %+v", children)
	}
}

func TestExpiredExam(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b"}, 0))

	inst := &exam.ExamInstance{
		ID:            "exp-1",
		Module:        "m",
		Sequence:      []exam.Token{{Kind: exam.TokenQuestion, ID: "q1"}},
		ChoiceMapping: [][]int{{0, 1}},
		CreatedAt:     time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt:     time.Now().Add(-time.Hour).Unix(),
	}
	if err := e.instances.PutInstance(ctx, inst); err != nil {
		t.Fatalf("put: %v", err)
	}

	view, err := e.renderer.Render(ctx, "exp-1")
	if err != nil {
		t.Fatalf("render expired: %v", err)
	}
	if !view.Expired {
		t.Fatal("view should be flagged expired")
	}

	_, err = e.scorer.Score(ctx, "exp-1", "u1", []exam.SubmittedAnswer{{QuestionID: "q1", ChoiceIndex: 0}})
	if !errors.Is(err, exam.ErrExamExpired) {
		t.Fatalf("want ErrExamExpired, got %v", err)
	}
	// rejection must not mark the instance finished
	got, _ := e.instances.GetInstance(ctx, "exp-1")
	if got.Finished() {
		t.Fatal("expired rejection must not finish the instance")
	}
}

func TestAlreadySubmitted(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b"}, 0))
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 1, Module: "m", UserID: "u1", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	ans := []exam.SubmittedAnswer{{QuestionID: "q1", ChoiceIndex: 0}}
	if _, err := e.scorer.Score(ctx, inst.ID, "u1", ans); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err = e.scorer.Score(ctx, inst.ID, "u1", ans)
	if !errors.Is(err, exam.ErrAlreadySubmitted) {
		t.Fatalf("want ErrAlreadySubmitted, got %v", err)
	}
}

func TestPartialSubmissionCountsMissingAsWrong(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	pool := []question.Question{
		standalone("q1", "m", []string{"a", "b", "c"}, 0),
		standalone("q2", "m", []string{"d", "e", "f"}, 1),
		standalone("q3", "m", []string{"g", "h", "i"}, 2),
	}
	e.seed(t, pool...)
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 3, Module: "m", UserID: "u1", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	view, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	// answer q1 and q2 correctly, omit q3 entirely
	var answers []exam.SubmittedAnswer
	for _, q := range pool[:2] {
		b, _ := findBlock(view.Series, q.ID)
		answers = append(answers, exam.SubmittedAnswer{QuestionID: q.ID, ChoiceIndex: correctDisplayIndex(t, b, q)})
	}
	report, err := e.scorer.Score(ctx, inst.ID, "u1", answers)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if report.Total != 3 || report.Score != 2 {
		t.Fatalf("report: score=%d total=%d", report.Score, report.Total)
	}
	missing, ok := detailFor(report, "q3")
	if !ok || missing.ShownIndex != -1 || missing.Correct {
		t.Fatalf("missing item detail: %+v", missing)
	}
	if report.Percentage != 67 {
		t.Fatalf("percentage: got %d, want 67", report.Percentage)
	}
}

func detailFor(r *exam.ScoreReport, id string) (exam.Answer, bool) {
	for _, d := range r.Details {
		if d.QuestionID == id {
			return d, true
		}
	}
	return exam.Answer{}, false
}

func TestUnresolvableQuestionCountsWrong(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	pool := []question.Question{
		standalone("q1", "m", []string{"a", "b"}, 0),
		standalone("q2", "m", []string{"c", "d"}, 1),
	}
	e.seed(t, pool...)
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 2, Module: "m", UserID: "u1", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	view, err := e.renderer.Render(ctx, inst.ID)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b1, _ := findBlock(view.Series, "q1")
	answers := []exam.SubmittedAnswer{
		{QuestionID: "q1", ChoiceIndex: correctDisplayIndex(t, b1, pool[0])},
		{QuestionID: "q2", ChoiceIndex: 0},
	}

	if err := e.questions.Delete(ctx, "q2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	report, err := e.scorer.Score(ctx, inst.ID, "u1", answers)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if report.Total != 2 || report.Score != 1 {
		t.Fatalf("unresolvable item must stay in denominator as wrong: %+v", report)
	}
	d, _ := detailFor(report, "q2")
	if d.CorrectIndex != -1 || d.Correct {
		t.Fatalf("unresolvable detail: %+v", d)
	}
}

func TestMalformedMappingFallsBackToCanonical(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b", "c", "d"}, 2))

	inst := &exam.ExamInstance{
		ID:            "mm-1",
		Module:        "m",
		Sequence:      []exam.Token{{Kind: exam.TokenQuestion, ID: "q1"}},
		ChoiceMapping: [][]int{{1, 0}}, // stale: question now has 4 choices
		CreatedAt:     time.Now().Unix(),
	}
	if err := e.instances.PutInstance(ctx, inst); err != nil {
		t.Fatalf("put: %v", err)
	}

	view, err := e.renderer.Render(ctx, "mm-1")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b := view.Series[0]
	if len(b.Choices) != 4 || b.Choices[0].Text != "a" || b.Choices[3].Text != "d" {
		t.Fatalf("expected canonical-order fallback, got %+v", b.Choices)
	}

	// shown index is treated as canonical, so answering the canonical
	// correct index scores correct
	report, err := e.scorer.Score(ctx, "mm-1", "u1", []exam.SubmittedAnswer{{QuestionID: "q1", ChoiceIndex: 2}})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if report.Score != 1 {
		t.Fatalf("fallback scoring: %+v", report)
	}
}

func TestOutOfRangeShownIndexIsUnanswered(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b"}, 0))
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 1, Module: "m", Persist: true})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	report, err := e.scorer.Score(ctx, inst.ID, "u1", []exam.SubmittedAnswer{{QuestionID: "q1", ChoiceIndex: 9}})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	d, _ := detailFor(report, "q1")
	if d.CanonicalIndex != -1 || d.Correct {
		t.Fatalf("out-of-range answer should be unanswered: %+v", d)
	}
}

func TestSampleClampAndEmptyPool(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t,
		standalone("q1", "m", []string{"a", "b"}, 0),
		standalone("q2", "m", []string{"c", "d"}, 1),
	)
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 5, Module: "m", Persist: true})
	if err != nil {
		t.Fatalf("over-ask should clamp, got %v", err)
	}
	if len(inst.Sequence) != 2 {
		t.Fatalf("clamped sequence length: %d", len(inst.Sequence))
	}

	_, err = e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 3, Module: "empty", Persist: true})
	if !errors.Is(err, exam.ErrNoQuestionsAvailable) {
		t.Fatalf("want ErrNoQuestionsAvailable, got %v", err)
	}
}

func TestAssignedPerLearnerInstances(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t,
		standalone("q1", "m", []string{"a", "b", "c", "d", "e", "f"}, 0),
	)
	insts, err := e.composer.ComposeAssigned(ctx, exam.AssignSpec{
		QuestionIDs: []string{"q1"},
		Users:       []string{"u1", "u2", "u3"},
		Module:      "m",
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(insts) != 3 {
		t.Fatalf("instances: %d", len(insts))
	}
	ids := map[string]bool{}
	for _, inst := range insts {
		if ids[inst.ID] {
			t.Fatal("duplicate instance id")
		}
		ids[inst.ID] = true
		if len(inst.ChoiceMapping[0]) != 6 {
			t.Fatalf("mapping length: %d", len(inst.ChoiceMapping[0]))
		}
		a, err := e.attempts.FindLatestByExam(ctx, inst.ID)
		if err != nil {
			t.Fatalf("started attempt missing for %s: %v", inst.AssignedUserID, err)
		}
		if a.Status != exam.StatusInProgress || a.UserID != inst.AssignedUserID {
			t.Fatalf("attempt: %+v", a)
		}
	}
}

func TestEphemeralSampleNotPersisted(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.seed(t, standalone("q1", "m", []string{"a", "b"}, 0))
	inst, err := e.composer.ComposeSample(ctx, exam.SampleSpec{Count: 1, Module: "m"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if _, err := e.instances.GetInstance(ctx, inst.ID); !errors.Is(err, exam.ErrExamNotFound) {
		t.Fatalf("ephemeral instance should not persist, got %v", err)
	}
	view, err := e.renderer.RenderInstance(ctx, inst)
	if err != nil {
		t.Fatalf("render ephemeral: %v", err)
	}
	if len(view.Series) != 1 {
		t.Fatalf("series: %+v", view.Series)
	}
}
