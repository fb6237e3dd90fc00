package translate_test

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/hearsay-live/hearsay/internal/translate"
	"github.com/hearsay-live/hearsay/pkg/types"
)

// result builds a minimal TranslationResult for ordering tests.
func result(index int) types.TranslationResult {
	return types.TranslationResult{
		Text:      fmt.Sprintf("sentence %d", index),
		SegmentID: "seg-1",
		Index:     index,
		IsFinal:   true,
	}
}

func indices(sent []types.TranslationResult) []int {
	out := make([]int, len(sent))
	for i, r := range sent {
		out[i] = r.Index
	}
	return out
}

func TestOnComplete_ReordersOutOfOrder(t *testing.T) {
	t.Parallel()

	var sent []types.TranslationResult
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	for _, i := range []int{2, 1, 0} {
		s.OnComplete(result(i))
	}

	want := []int{0, 1, 2}
	got := indices(sent)
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want index %d, got %d", i, want[i], got[i])
		}
	}
	if s.HasPending() {
		t.Error("want empty buffer after full drain")
	}
}

func TestOnComplete_InOrderPassesThrough(t *testing.T) {
	t.Parallel()

	var sent []types.TranslationResult
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	for i := range 3 {
		s.OnComplete(result(i))
		if len(sent) != i+1 {
			t.Fatalf("after index %d: want %d sent, got %d", i, i+1, len(sent))
		}
	}
	if got := indices(sent); got[0] != 0 || got[1] != 1 || got[2] != 2 {
		t.Errorf("want [0 1 2], got %v", got)
	}
}

func TestOnComplete_HoldsBackBehindGaps(t *testing.T) {
	t.Parallel()

	var sent []types.TranslationResult
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	s.OnComplete(result(2))
	s.OnComplete(result(4))
	if len(sent) != 0 {
		t.Fatalf("nothing should be sent before index 0, got %v", indices(sent))
	}
	if got := s.PendingCount(); got != 2 {
		t.Fatalf("want 2 pending, got %d", got)
	}

	s.OnComplete(result(0))
	if got := indices(sent); len(got) != 1 || got[0] != 0 {
		t.Fatalf("after index 0: want [0], got %v", got)
	}

	s.OnComplete(result(1))
	if got := indices(sent); len(got) != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("after index 1: want [0 1 2], got %v", got)
	}

	s.OnComplete(result(3))
	want := []int{0, 1, 2, 3, 4}
	got := indices(sent)
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want index %d, got %d", i, want[i], got[i])
		}
	}
}

func TestFlushAll_SendsAcrossGaps(t *testing.T) {
	t.Parallel()

	var sent []types.TranslationResult
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	s.OnComplete(result(3))
	s.OnComplete(result(1))
	if len(sent) != 0 {
		t.Fatalf("gap at 0 should hold everything, got %v", indices(sent))
	}

	s.FlushAll()
	if got := indices(sent); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("want flush order [1 3], got %v", got)
	}
	if s.HasPending() {
		t.Error("want empty buffer after flush")
	}

	// A straggler finishing after the flush is still delivered.
	s.OnComplete(result(0))
	if got := indices(sent); len(got) != 3 || got[2] != 0 {
		t.Errorf("want straggler delivered after flush, got %v", got)
	}
}

func TestFlushAll_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	calls := 0
	s := translate.NewOrderedSender(func(types.TranslationResult) { calls++ })
	s.FlushAll()
	if calls != 0 {
		t.Errorf("want no sends on empty flush, got %d", calls)
	}
}

func TestReset_RewindsForNextSegment(t *testing.T) {
	t.Parallel()

	var sent []types.TranslationResult
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	s.OnComplete(result(0))
	s.OnComplete(result(2))
	s.Reset()

	if s.HasPending() {
		t.Fatal("want empty buffer after reset")
	}

	// Index 0 of the next segment must pass straight through again.
	s.OnComplete(result(0))
	if got := indices(sent); len(got) != 2 || got[1] != 0 {
		t.Errorf("want index 0 sent after reset, got %v", got)
	}
}

func TestPendingCount(t *testing.T) {
	t.Parallel()

	s := translate.NewOrderedSender(func(types.TranslationResult) {})
	if s.HasPending() || s.PendingCount() != 0 {
		t.Fatal("fresh sender should have nothing pending")
	}
	s.OnComplete(result(3))
	s.OnComplete(result(5))
	if got := s.PendingCount(); got != 2 {
		t.Errorf("want 2 pending, got %d", got)
	}
}

func TestOnComplete_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	const n = 64
	var sent []types.TranslationResult
	// send runs under the sender's own mutex, so the append is serialized.
	s := translate.NewOrderedSender(func(r types.TranslationResult) { sent = append(sent, r) })

	var wg sync.WaitGroup
	for _, i := range rand.Perm(n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.OnComplete(result(i))
		}()
	}
	wg.Wait()

	if len(sent) != n {
		t.Fatalf("want %d sent, got %d", n, len(sent))
	}
	for i, r := range sent {
		if r.Index != i {
			t.Fatalf("position %d: want index %d, got %d", i, i, r.Index)
		}
	}
}
