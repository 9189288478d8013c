package cache

import (
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
)

func TestEvaluateSendWhenAbsent(t *testing.T) {
	w := types.NewWorker("w1", "h:1")
	f := &types.File{CacheName: "fp1", Flags: types.FlagCache}
	if got := Evaluate(w, f, time.Now(), 10); got != Send {
		t.Fatalf("expected Send, got %v", got)
	}
}

func TestEvaluateHitWhenMatching(t *testing.T) {
	w := types.NewWorker("w1", "h:1")
	now := time.Now()
	Update(w, "fp1", 100, 5*time.Millisecond)
	w.Cache["fp1"].MTime = now

	f := &types.File{CacheName: "fp1", Flags: types.FlagCache}
	if got := Evaluate(w, f, now, 100); got != Hit {
		t.Fatalf("expected Hit, got %v", got)
	}
}

func TestEvaluateStaleHitWhenSizeDiffers(t *testing.T) {
	w := types.NewWorker("w1", "h:1")
	now := time.Now()
	Update(w, "fp1", 100, 0)
	w.Cache["fp1"].MTime = now

	f := &types.File{CacheName: "fp1", Flags: types.FlagCache}
	if got := Evaluate(w, f, now, 200); got != StaleHit {
		t.Fatalf("expected StaleHit, got %v", got)
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	w := types.NewWorker("w1", "h:1")
	Update(w, "fp1", 100, 0)
	Invalidate(w, "fp1")
	if Contains(w, "fp1") {
		t.Fatalf("expected entry removed after invalidate")
	}
}
