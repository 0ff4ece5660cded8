package exam

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/quizforge/quizforge-engine/internal/question"
)

// Renderer reconstructs the learner-facing view of a persisted instance by
// re-joining the token sequence with current question content and applying
// the stored shuffle. Answer-revealing fields never reach the output.
type Renderer struct {
	questions question.Store
	instances InstanceStore
	now       func() time.Time
}

func NewRenderer(qs question.Store, is InstanceStore) *Renderer {
	return &Renderer{questions: qs, instances: is, now: time.Now}
}

func (r *Renderer) Render(ctx context.Context, examID string) (*LearnerView, error) {
	inst, err := r.instances.GetInstance(ctx, examID)
	if err != nil {
		return nil, err
	}
	view, err := r.RenderInstance(ctx, inst)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// RenderInstance builds the view for an already-loaded instance (also used
// for ephemeral, unpersisted compositions). Unresolvable ids are skipped,
// never fatal; an expired or finished instance still renders but is flagged.
func (r *Renderer) RenderInstance(ctx context.Context, inst *ExamInstance) (*LearnerView, error) {
	byID, err := r.resolveAll(ctx, inst)
	if err != nil {
		return nil, err
	}
	view := &LearnerView{
		ExamID:    inst.ID,
		Series:    []Block{},
		ExpiresAt: inst.ExpiresAt,
		Expired:   inst.Expired(r.now()),
		Finished:  inst.Finished(),
	}
	seq := inst.Sequence
	for i := 0; i < len(seq); {
		tok := seq[i]
		if tok.Kind != TokenParent {
			if q, ok := byID[tok.ID]; ok {
				view.Series = append(view.Series, r.questionBlock(q, inst.ChoiceMapping[i]))
			} else {
				log.Printf("render %s: question %s no longer exists, skipping", inst.ID, tok.ID)
			}
			i++
			continue
		}
		parent, ok := byID[tok.ID]
		if !ok {
			// orphaned children that follow render as top-level blocks
			log.Printf("render %s: parent %s no longer exists, skipping marker", inst.ID, tok.ID)
			i++
			continue
		}
		block := Block{
			ID:         parent.ID,
			Type:       BlockComprehension,
			Text:       parent.Text,
			Passage:    parent.Passage,
			Children:   []Block{},
			Tags:       parent.Tags,
			Difficulty: parent.Difficulty,
		}
		childSet := make(map[string]bool, len(parent.ChildIDs))
		for _, id := range parent.ChildIDs {
			childSet[id] = true
		}
		j := i + 1
		for j < len(seq) && seq[j].Kind == TokenQuestion && childSet[seq[j].ID] {
			if q, ok := byID[seq[j].ID]; ok {
				block.Children = append(block.Children, r.questionBlock(q, inst.ChoiceMapping[j]))
			} else {
				log.Printf("render %s: child %s of %s no longer exists, skipping", inst.ID, seq[j].ID, tok.ID)
			}
			j++
		}
		view.Series = append(view.Series, block)
		i = j
	}
	return view, nil
}

// questionBlock applies the display shuffle: choices[i] = canonical[m[i]].
// A mapping whose length disagrees with the live choices falls back to
// canonical order for that one item.
func (r *Renderer) questionBlock(q question.Question, m []int) Block {
	b := Block{
		ID:         q.ID,
		Type:       BlockQuestion,
		Text:       q.Text,
		Choices:    make([]Choice, 0, len(q.Choices)),
		Tags:       q.Tags,
		Difficulty: q.Difficulty,
	}
	if len(m) != len(q.Choices) {
		log.Printf("render: malformed mapping for %s (have %d, want %d), using canonical order", q.ID, len(m), len(q.Choices))
		for _, c := range q.Choices {
			b.Choices = append(b.Choices, Choice{Text: c})
		}
		return b
	}
	for _, canonical := range m {
		b.Choices = append(b.Choices, Choice{Text: q.Choices[canonical]})
	}
	return b
}

func (r *Renderer) resolveAll(ctx context.Context, inst *ExamInstance) (map[string]question.Question, error) {
	ids := make([]string, 0, len(inst.Sequence))
	for _, t := range inst.Sequence {
		ids = append(ids, t.ID)
	}
	qs, err := r.questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve questions: %w", err)
	}
	byID := make(map[string]question.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	return byID, nil
}
