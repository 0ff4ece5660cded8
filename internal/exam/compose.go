package exam

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/quizforge-engine/internal/question"
)

// Composer builds exam instances: it selects questions, expands
// comprehension parents into marker+children token runs, and draws an
// independent choice shuffle for every gradable item.
type Composer struct {
	questions question.Store
	instances InstanceStore
	attempts  AttemptStore
	now       func() time.Time
}

func NewComposer(qs question.Store, is InstanceStore, as AttemptStore) *Composer {
	return &Composer{questions: qs, instances: is, attempts: as, now: time.Now}
}

// SampleSpec selects count questions uniformly at random from the
// module+org pool (org questions unioned with globally shared ones).
type SampleSpec struct {
	Count  int
	Module string
	OrgID  string
	UserID string        // optional; empty for anonymous sampling
	TTL    time.Duration // 0 = never expires
	// Persist=false composes a throwaway instance for immediate rendering
	// without touching the stores.
	Persist bool
}

// AssignSpec targets an explicit pool at a set of learners. Exactly one of
// QuestionIDs or ParentID must be set: ParentID assigns a single
// comprehension passage plus all of its children.
type AssignSpec struct {
	QuestionIDs []string
	ParentID    string
	Users       []string
	Module      string
	OrgID       string
	TTL         time.Duration
}

// ComposeSample draws a fresh exam. Asking for more questions than the pool
// holds returns the whole pool; an empty pool is ErrNoQuestionsAvailable.
func (c *Composer) ComposeSample(ctx context.Context, spec SampleSpec) (*ExamInstance, error) {
	if spec.Count < 1 {
		return nil, fmt.Errorf("sample count must be positive, got %d", spec.Count)
	}
	pool, err := c.questions.Sample(ctx, question.Filter{Module: spec.Module, OrgID: spec.OrgID}, spec.Count)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	inst, err := c.build(ctx, pool, spec.Module, spec.OrgID, spec.UserID, spec.TTL)
	if err != nil {
		return nil, err
	}
	if !spec.Persist {
		return inst, nil
	}
	if err := c.instances.PutInstance(ctx, inst); err != nil {
		return nil, fmt.Errorf("persist instance: %w", err)
	}
	if spec.UserID != "" {
		if err := c.startAttempt(ctx, inst); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// ComposeAssigned creates one instance per target learner with an
// independently drawn shuffle per question per learner, so two learners
// taking the "same" exam see different choice orders.
func (c *Composer) ComposeAssigned(ctx context.Context, spec AssignSpec) ([]*ExamInstance, error) {
	if len(spec.Users) == 0 {
		return nil, fmt.Errorf("assignment requires at least one user")
	}
	ids := spec.QuestionIDs
	if spec.ParentID != "" {
		ids = []string{spec.ParentID}
	}
	pool, err := c.questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve pool: %w", err)
	}
	if len(pool) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	out := make([]*ExamInstance, 0, len(spec.Users))
	for _, user := range spec.Users {
		inst, err := c.build(ctx, pool, spec.Module, spec.OrgID, user, spec.TTL)
		if err != nil {
			return nil, err
		}
		if err := c.instances.PutInstance(ctx, inst); err != nil {
			return nil, fmt.Errorf("persist instance for %s: %w", user, err)
		}
		if err := c.startAttempt(ctx, inst); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// build expands the drawn pool into the token sequence and mapping arrays.
// Draw order is preserved; within a parent, child order is exactly the
// parent's stored order and is never re-shuffled.
func (c *Composer) build(ctx context.Context, pool []question.Question, module, orgID, userID string, ttl time.Duration) (*ExamInstance, error) {
	rng := newRand()
	now := c.now()
	inst := &ExamInstance{
		ID:             uuid.NewString(),
		OrgID:          orgID,
		Module:         module,
		AssignedUserID: userID,
		CreatedAt:      now.Unix(),
	}
	if ttl > 0 {
		inst.ExpiresAt = now.Add(ttl).Unix()
	}
	for _, q := range pool {
		switch q.Variant {
		case question.VariantComprehension:
			inst.Sequence = append(inst.Sequence, Token{Kind: TokenParent, ID: q.ID})
			inst.ChoiceMapping = append(inst.ChoiceMapping, []int{})
			children, err := c.questions.FindByIDs(ctx, q.ChildIDs)
			if err != nil {
				return nil, fmt.Errorf("resolve children of %s: %w", q.ID, err)
			}
			for _, child := range children {
				if child.Variant != question.VariantStandalone {
					log.Printf("compose: skipping child %s of %s: not standalone", child.ID, q.ID)
					continue
				}
				inst.Sequence = append(inst.Sequence, Token{Kind: TokenQuestion, ID: child.ID})
				inst.ChoiceMapping = append(inst.ChoiceMapping, Shuffle(rng, len(child.Choices)))
			}
		case question.VariantStandalone:
			inst.Sequence = append(inst.Sequence, Token{Kind: TokenQuestion, ID: q.ID})
			inst.ChoiceMapping = append(inst.ChoiceMapping, Shuffle(rng, len(q.Choices)))
		default:
			log.Printf("compose: skipping %s: unknown variant %q", q.ID, q.Variant)
		}
	}
	if len(inst.Sequence) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	return inst, nil
}

func (c *Composer) startAttempt(ctx context.Context, inst *ExamInstance) error {
	a := &Attempt{
		ID:          uuid.NewString(),
		UserID:      inst.AssignedUserID,
		OrgID:       inst.OrgID,
		Module:      inst.Module,
		ExamID:      inst.ID,
		Status:      StatusInProgress,
		QuestionIDs: inst.QuestionIDs(),
		StartedAt:   inst.CreatedAt,
	}
	if _, err := c.attempts.CreateOrUpdate(ctx, a); err != nil {
		return fmt.Errorf("start attempt: %w", err)
	}
	return nil
}
