package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"kisanmitra/internal/models"
)

func TestAppendAssignsUniqueIDsAndKeepsOrder(t *testing.T) {
	s := NewStore()
	first := s.Append(models.Turn{Role: models.RoleUser, Content: "how to grow cotton"})
	second := s.Append(models.Turn{ID: first.ID, Role: models.RoleAssistant, Content: "water early"})
	if first.ID == "" || second.ID == "" {
		t.Fatalf("ids not assigned: %q %q", first.ID, second.ID)
	}
	if first.ID == second.ID {
		t.Fatalf("caller supplied id was reused")
	}
	got := s.Snapshot()
	if len(got) != 2 || got[0].Role != models.RoleUser || got[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected order: %#v", got)
	}
}

func TestAppendTimestampsNeverDecrease(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(-time.Minute), base.Add(time.Second), base.Add(time.Second)}
	i := 0
	s := NewStore(WithClock(func() time.Time {
		ts := ticks[i]
		i++
		return ts
	}))
	for range ticks {
		s.Append(models.Turn{Role: models.RoleUser, Content: "x"})
	}
	var prev time.Time
	for turn := range s.All() {
		if turn.CreatedAt.Before(prev) {
			t.Fatalf("timestamp went backwards: %v after %v", turn.CreatedAt, prev)
		}
		prev = turn.CreatedAt
	}
	if got := s.Snapshot()[1].CreatedAt; !got.Equal(base) {
		t.Fatalf("backwards clock should clamp to previous timestamp, got %v", got)
	}
}

func TestStoredTurnsAreNotMutableByCaller(t *testing.T) {
	s := NewStore()
	suggestions := []string{"a", "b"}
	appended := s.Append(models.Turn{Role: models.RoleAssistant, Suggestions: suggestions})
	suggestions[0] = "changed"
	appended.Suggestions[1] = "changed"
	for turn := range s.All() {
		turn.Suggestions[0] = "changed again"
	}
	last, ok := s.Last()
	if !ok {
		t.Fatalf("expected a last turn")
	}
	if last.Suggestions[0] != "a" || last.Suggestions[1] != "b" {
		t.Fatalf("stored turn mutated: %v", last.Suggestions)
	}
}

func TestAllIsRestartableAndStopsEarly(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.Append(models.Turn{Role: models.RoleUser, Content: fmt.Sprint(i)})
	}
	view := s.All()
	for pass := 0; pass < 2; pass++ {
		n := 0
		for range view {
			n++
		}
		if n != 5 {
			t.Fatalf("pass %d saw %d turns", pass, n)
		}
	}
	n := 0
	for range view {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("early break not honoured")
	}
}

func TestAllDuringConcurrentAppend(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Append(models.Turn{Role: models.RoleUser, Content: "x"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			prev := time.Time{}
			for turn := range s.All() {
				if turn.CreatedAt.Before(prev) {
					t.Errorf("out of order read")
					return
				}
				prev = turn.CreatedAt
			}
		}
	}()
	wg.Wait()
	if s.Len() != 200 {
		t.Fatalf("expected 200 turns, got %d", s.Len())
	}
}
