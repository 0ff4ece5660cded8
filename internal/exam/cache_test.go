package exam_test

import (
	"context"
	"testing"
	"time"

	"github.com/quizforge/quizforge-engine/internal/exam"
)

func TestCachedInstanceStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := exam.NewInMemoryInstanceStore()
	cached := exam.NewCachedInstanceStore(inner, time.Minute)

	inst := &exam.ExamInstance{
		ID:            "ex-1",
		Sequence:      []exam.Token{{Kind: exam.TokenQuestion, ID: "q1"}},
		ChoiceMapping: [][]int{{0}},
		CreatedAt:     time.Now().Unix(),
	}
	// written only to the inner store: the cache must fall through
	if err := inner.PutInstance(ctx, inst); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := cached.GetInstance(ctx, "ex-1")
	if err != nil {
		t.Fatalf("read-through get: %v", err)
	}
	if got.ID != "ex-1" {
		t.Fatalf("got %+v", got)
	}

	// MarkFinished through the cache must not serve the stale copy afterward
	at := time.Now().Unix()
	if err := cached.MarkFinished(ctx, "ex-1", at); err != nil {
		t.Fatalf("mark finished: %v", err)
	}
	got, err = cached.GetInstance(ctx, "ex-1")
	if err != nil {
		t.Fatalf("get after finish: %v", err)
	}
	if got.FinishedAt != at {
		t.Fatalf("stale cache entry served: %+v", got)
	}
}

func TestCachedInstanceStoreDisabled(t *testing.T) {
	inner := exam.NewInMemoryInstanceStore()
	if got := exam.NewCachedInstanceStore(inner, 0); got != inner {
		t.Fatal("ttl<=0 should return the inner store unchanged")
	}
}
