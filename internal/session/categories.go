package session

import (
	"time"

	"papermind/internal/store"
)

// Category is a labelled group of threads in the thread list.
type Category struct {
	Label   string
	Threads []*store.Thread
}

var categoryLabels = []string{"Today", "Yesterday", "Previous 7 Days", "Previous 30 Days", "Older"}

// CategorizeThreads groups threads by how recently they were updated,
// relative to the local midnight of now. Empty groups are omitted and the
// order within a group is preserved.
func CategorizeThreads(threads []*store.Thread, now time.Time) []Category {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	bounds := []time.Time{
		today,
		today.AddDate(0, 0, -1),
		today.AddDate(0, 0, -7),
		today.AddDate(0, 0, -30),
	}

	groups := make([][]*store.Thread, len(categoryLabels))
	for _, th := range threads {
		slot := len(bounds)
		for i, b := range bounds {
			if !th.UpdatedAt.Before(b) {
				slot = i
				break
			}
		}
		groups[slot] = append(groups[slot], th)
	}

	var out []Category
	for i, g := range groups {
		if len(g) > 0 {
			out = append(out, Category{Label: categoryLabels[i], Threads: g})
		}
	}
	return out
}
