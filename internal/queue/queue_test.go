package queue

import (
	"testing"

	"github.com/studiocommand/engine/internal/model"
)

func item(id, title string) *model.LogItem {
	return &model.LogItem{ID: id, Title: title, Dur: "0:10"}
}

func TestNormalizeMarkers(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B"), item("c", "C")})

	snap := s.Snapshot()
	if snap[0].State != model.MarkerPlaying {
		t.Fatalf("item 0 state = %s, want playing", snap[0].State)
	}
	if snap[1].State != model.MarkerNext {
		t.Fatalf("item 1 state = %s, want next", snap[1].State)
	}
	if snap[2].State != model.MarkerQueued {
		t.Fatalf("item 2 state = %s, want queued", snap[2].State)
	}
}

func TestRemoveRejectsHead(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B")})
	if err := s.Remove(0); err == nil {
		t.Fatal("expected error removing index 0")
	}
	if err := s.Remove(5); err == nil {
		t.Fatal("expected error removing out-of-range index")
	}
	if err := s.Remove(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestMoveReordersTail(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B"), item("c", "C"), item("d", "D")})
	if err := s.Move(1, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	ids := []string{snap[0].ID, snap[1].ID, snap[2].ID, snap[3].ID}
	want := []string{"a", "c", "d", "b"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestMoveRejectsHead(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B")})
	if err := s.Move(0, 1); err == nil {
		t.Fatal("expected error moving index 0")
	}
}

func TestReorderPinsHead(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B"), item("c", "C")})
	if err := s.Reorder([]string{"c", "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := s.Snapshot()
	if snap[0].ID != "a" || snap[1].ID != "c" || snap[2].ID != "b" {
		t.Fatalf("unexpected order after reorder: %+v", snap)
	}
}

func TestReorderRejectsMismatch(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B"), item("c", "C")})
	if err := s.Reorder([]string{"b"}); err == nil {
		t.Fatal("expected length-mismatch error")
	}
	if err := s.Reorder([]string{"b", "b"}); err == nil {
		t.Fatal("expected duplicate-id error")
	}
	if err := s.Reorder([]string{"b", "z"}); err == nil {
		t.Fatal("expected unknown-id error")
	}
}

func TestInsertOnEmptyQueueBecomesHead(t *testing.T) {
	s := New()
	if err := s.Insert(0, item("a", "A")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.HeadID() != "a" {
		t.Fatalf("head id = %q, want a", s.HeadID())
	}
	if s.Snapshot()[0].State != model.MarkerPlaying {
		t.Fatalf("inserted-on-empty item should be playing")
	}
}

func TestAdvanceIfHeadGuardsAgainstRace(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A"), item("b", "B")})
	if _, ok := s.AdvanceIfHead("stale-id", model.MarkerPlayed); ok {
		t.Fatal("expected AdvanceIfHead to refuse a stale id")
	}
	removed, ok := s.AdvanceIfHead("a", model.MarkerPlayed)
	if !ok || removed.ID != "a" {
		t.Fatalf("expected to advance head a, got %+v ok=%v", removed, ok)
	}
	if s.HeadID() != "b" {
		t.Fatalf("new head = %q, want b", s.HeadID())
	}
}

func TestReseedResetsPositionOnTitleChange(t *testing.T) {
	s := New()
	s.Replace([]*model.LogItem{item("a", "A")})
	s.SetPosition(5)
	s.AdvanceIfHead("a", model.MarkerPlayed)
	s.Append(item("b", "B"))
	if now := s.NowPlaying(); now.Pos != 0 || now.PosFrac != 0 {
		t.Fatalf("expected position reset on new head, got %+v", now)
	}
}
