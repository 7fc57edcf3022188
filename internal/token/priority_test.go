package token

import (
	"testing"
	"time"
)

func TestPriorityScores(t *testing.T) {
	cases := []struct {
		category Category
		score    int
	}{
		{CategoryEmergency, 100},
		{CategoryPaidPriority, 80},
		{CategoryFollowUp, 60},
		{CategoryOnlineBooking, 40},
		{CategoryWalkIn, 20},
		{Category("unknown"), 0},
	}
	for _, tt := range cases {
		if got := PriorityScore(tt.category); got != tt.score {
			t.Fatalf("PriorityScore(%q)=%d, want %d", tt.category, got, tt.score)
		}
	}
}

func TestCanBump(t *testing.T) {
	cases := []struct {
		bumper Category
		bumped Category
		ok     bool
	}{
		{CategoryEmergency, CategoryPaidPriority, true},
		{CategoryEmergency, CategoryFollowUp, true},
		{CategoryEmergency, CategoryOnlineBooking, true},
		{CategoryEmergency, CategoryWalkIn, true},
		{CategoryEmergency, CategoryEmergency, false},
		{CategoryPaidPriority, CategoryWalkIn, true},
		// Capability matrix, not score comparison: paid priority outscores
		// follow-up and online booking but may not bump them.
		{CategoryPaidPriority, CategoryFollowUp, false},
		{CategoryPaidPriority, CategoryOnlineBooking, false},
		{CategoryPaidPriority, CategoryPaidPriority, false},
		{CategoryFollowUp, CategoryWalkIn, false},
		{CategoryOnlineBooking, CategoryWalkIn, false},
		{CategoryWalkIn, CategoryWalkIn, false},
	}
	for _, tt := range cases {
		if got := CanBump(tt.bumper, tt.bumped); got != tt.ok {
			t.Fatalf("CanBump(%q, %q)=%v, want %v", tt.bumper, tt.bumped, got, tt.ok)
		}
	}
}

func TestCanBeBumped(t *testing.T) {
	for count, want := range map[int]bool{0: true, 1: true, 2: false, 3: false} {
		if got := CanBeBumped(count); got != want {
			t.Fatalf("CanBeBumped(%d)=%v, want %v", count, got, want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	if _, err := ParseCategory("walk_in"); err != nil {
		t.Fatalf("ParseCategory(walk_in): %v", err)
	}
	if _, err := ParseCategory("vip"); err == nil {
		t.Fatal("ParseCategory(vip) accepted an unknown category")
	}
}

func TestLessOrdering(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	paid := &Token{ID: "a", Priority: 80, CreatedAt: base.Add(time.Minute)}
	walkEarly := &Token{ID: "b", Priority: 20, CreatedAt: base}
	walkLate := &Token{ID: "c", Priority: 20, CreatedAt: base.Add(2 * time.Minute)}
	twinOfEarly := &Token{ID: "d", Priority: 20, CreatedAt: base}

	if !Less(paid, walkEarly) {
		t.Fatal("higher score must order first regardless of creation time")
	}
	if !Less(walkEarly, walkLate) {
		t.Fatal("equal score must order by earlier creation")
	}
	if !Less(walkEarly, twinOfEarly) || Less(twinOfEarly, walkEarly) {
		t.Fatal("identical score and creation time must fall back to id order")
	}
}
