package content

import (
	"strings"
	"testing"
	"time"

	"github.com/todoharvest/pkg/models"
)

func TestNormalize_DropsEmptyText(t *testing.T) {
	raw := map[models.Source][]RawItem{
		models.SourceChat: {
			{Text: "real message", SourceID: "c1"},
			{Text: "", SourceID: "c2"},
			{Text: "   \n\t ", SourceID: "c3"},
		},
	}

	units := Normalize(raw, 0)
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	if units[0].SourceID != "c1" {
		t.Errorf("surviving unit = %s, want c1", units[0].SourceID)
	}
}

func TestNormalize_TruncatesWithMarker(t *testing.T) {
	long := strings.Repeat("x", 50)
	raw := map[models.Source][]RawItem{
		models.SourceEmail: {{Text: long, SourceID: "e1"}},
	}

	units := Normalize(raw, 10)
	if len(units) != 1 {
		t.Fatalf("expected 1 unit, got %d", len(units))
	}
	want := strings.Repeat("x", 10) + TruncationMarker
	if units[0].Text != want {
		t.Errorf("truncated text = %q, want %q", units[0].Text, want)
	}
}

func TestNormalize_ShortTextUntouched(t *testing.T) {
	raw := map[models.Source][]RawItem{
		models.SourceEmail: {{Text: "short", SourceID: "e1"}},
	}
	units := Normalize(raw, 100)
	if units[0].Text != "short" {
		t.Errorf("short text modified: %q", units[0].Text)
	}
}

func TestNormalize_StableOrdering(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	raw := map[models.Source][]RawItem{
		models.SourceMeeting: {
			{Text: "meeting note", SourceID: "m1", Timestamp: t0},
		},
		models.SourceEmail: {
			{Text: "second email", SourceID: "e2", Timestamp: t0.Add(time.Hour)},
			{Text: "first email", SourceID: "e1", Timestamp: t0},
		},
		models.SourceChat: {
			{Text: "chat message", SourceID: "c1", Timestamp: t0},
		},
	}

	units := Normalize(raw, 0)
	gotIDs := make([]string, len(units))
	for i, u := range units {
		gotIDs[i] = u.SourceID
	}

	// chat before email before meeting; emails chronological
	want := []string{"c1", "e1", "e2", "m1"}
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("order = %v, want %v", gotIDs, want)
		}
	}

	// same input, same order
	again := Normalize(raw, 0)
	for i := range units {
		if units[i].SourceID != again[i].SourceID {
			t.Fatal("Normalize ordering not deterministic")
		}
	}
}

func TestNormalize_TieBreakBySourceID(t *testing.T) {
	t0 := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	raw := map[models.Source][]RawItem{
		models.SourceChat: {
			{Text: "b", SourceID: "b", Timestamp: t0},
			{Text: "a", SourceID: "a", Timestamp: t0},
		},
	}
	units := Normalize(raw, 0)
	if units[0].SourceID != "a" || units[1].SourceID != "b" {
		t.Errorf("equal-timestamp units not ordered by source id: %s, %s", units[0].SourceID, units[1].SourceID)
	}
}

func TestNormalize_CopiesParticipants(t *testing.T) {
	participants := []string{"ada@example.com", "grace@example.com"}
	raw := map[models.Source][]RawItem{
		models.SourceEmail: {{Text: "hello", SourceID: "e1", Participants: participants}},
	}
	units := Normalize(raw, 0)

	participants[0] = "mutated"
	if units[0].Participants[0] != "ada@example.com" {
		t.Error("Normalize must copy participant slices, not alias them")
	}
}
