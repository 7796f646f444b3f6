// internal/service/commerce/infrastructure/memory/local_test.go
package memory

import (
	"context"
	"testing"
)

func TestCompletionStoreKeepsProgressUntilCleared(t *testing.T) {
	s := NewCompletionStore()
	ctx := context.Background()

	done, err := s.AddStep(ctx, 1, "STOCK", 2)
	if err != nil || done {
		t.Fatalf("AddStep = (%v, %v), want (false, nil)", done, err)
	}
	done, _ = s.AddStep(ctx, 1, "POINT", 2)
	if !done {
		t.Fatal("second distinct step should report completion")
	}
	// 重投最后一步：进度仍在，完成信号可以重复给出
	done, _ = s.AddStep(ctx, 1, "POINT", 2)
	if !done {
		t.Fatal("redelivered final step should still report completion")
	}

	if err := s.Clear(ctx, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	done, _ = s.AddStep(ctx, 1, "POINT", 2)
	if done {
		t.Fatal("cleared progress should start over")
	}
}

func TestOnceGuardReleaseAllowsReacquire(t *testing.T) {
	g := NewOnceGuard()
	ctx := context.Background()

	if ok, _ := g.Acquire(ctx, "k"); !ok {
		t.Fatal("first acquire should succeed")
	}
	if ok, _ := g.Acquire(ctx, "k"); ok {
		t.Fatal("second acquire should be rejected")
	}
	if err := g.Release(ctx, "k"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := g.Acquire(ctx, "k"); !ok {
		t.Fatal("acquire after release should succeed")
	}
}
