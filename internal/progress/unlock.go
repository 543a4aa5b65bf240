package progress

import (
	"github.com/p-n-ai/pai-arena/internal/content"
)

// IsUnlocked reports whether a learner with userXP may open item.
func IsUnlocked(userXP int, item content.Item) bool {
	return userXP >= item.UnlockXPRequired
}

// State is how an item appears in a learner's listing.
type State string

const (
	StateCompleted State = "completed"
	StateCurrent   State = "current"
	StateAvailable State = "available"
	StateLocked    State = "locked"
)

// ListingEntry is one catalog item annotated for a learner.
type ListingEntry struct {
	content.Item
	Unlocked  bool  `json:"unlocked"`
	Completed bool  `json:"completed"`
	State     State `json:"state"`
}

// BuildListing annotates items with unlock and completion state for p.
func BuildListing(p LearnerProgress, items []content.Item) []ListingEntry {
	out := make([]ListingEntry, 0, len(items))
	for _, item := range items {
		unlocked := IsUnlocked(p.XPTotal, item)
		completed := p.HasCompleted(item.Kind, item.ID)
		out = append(out, ListingEntry{
			Item:      item,
			Unlocked:  unlocked,
			Completed: completed,
			State:     stateFor(p, item, unlocked, completed),
		})
	}
	return out
}

func stateFor(p LearnerProgress, item content.Item, unlocked, completed bool) State {
	if completed {
		return StateCompleted
	}
	if !unlocked {
		return StateLocked
	}
	if item.Kind != content.KindLesson {
		return StateAvailable
	}
	switch {
	case item.Order == p.CurrentLessonOrder:
		return StateCurrent
	case item.Order < p.CurrentLessonOrder:
		return StateAvailable
	default:
		return StateLocked
	}
}
