package token

import "fmt"

// Category is the closed set of patient classes. Scores and bump rights are
// table-driven; there are no per-category types.
type Category string

const (
	CategoryEmergency     Category = "emergency"
	CategoryPaidPriority  Category = "paid_priority"
	CategoryFollowUp      Category = "follow_up"
	CategoryOnlineBooking Category = "online_booking"
	CategoryWalkIn        Category = "walk_in"
)

var priorityScores = map[Category]int{
	CategoryEmergency:     100,
	CategoryPaidPriority:  80,
	CategoryFollowUp:      60,
	CategoryOnlineBooking: 40,
	CategoryWalkIn:        20,
}

// bumpMatrix is a fixed capability table, not derivable from scores:
// paid priority outranks follow-up on score but may not bump it.
var bumpMatrix = map[Category][]Category{
	CategoryEmergency: {
		CategoryPaidPriority,
		CategoryFollowUp,
		CategoryOnlineBooking,
		CategoryWalkIn,
	},
	CategoryPaidPriority: {CategoryWalkIn},
}

const maxBumps = 2

// PriorityScore returns the fixed score for a category, 0 for unknown.
func PriorityScore(c Category) int {
	return priorityScores[c]
}

// ParseCategory validates a wire-level category string.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if _, ok := priorityScores[c]; !ok {
		return "", fmt.Errorf("unknown patient category %q", s)
	}
	return c, nil
}

// CanBump reports whether a patient of category bumper may evict an
// allocated patient of category bumped.
func CanBump(bumper, bumped Category) bool {
	for _, c := range bumpMatrix[bumper] {
		if c == bumped {
			return true
		}
	}
	return false
}

// CanBeBumped reports whether a token with the given bump count may still be
// displaced. Two bumps make a token permanently bump-immune.
func CanBeBumped(bumpCount int) bool {
	return bumpCount < maxBumps
}

// Less is the total order used for every waitlist: higher score first, then
// earlier creation, then id so that no two distinct tokens compare equal.
func Less(a, b *Token) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
