package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"papermind/internal/store"
)

func TestCategorizeThreads(t *testing.T) {
	now := time.Date(2024, 5, 20, 15, 0, 0, 0, time.UTC)
	at := func(id string, ts time.Time) *store.Thread { return &store.Thread{ID: id, UpdatedAt: ts} }
	threads := []*store.Thread{
		at("today", now.Add(-time.Hour)),
		at("midnight", time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)),
		at("yesterday", now.AddDate(0, 0, -1)),
		at("week", now.AddDate(0, 0, -5)),
		at("older", now.AddDate(0, -3, 0)),
	}

	got := CategorizeThreads(threads, now)
	labels := make([]string, 0, len(got))
	ids := map[string][]string{}
	for _, c := range got {
		labels = append(labels, c.Label)
		for _, th := range c.Threads {
			ids[c.Label] = append(ids[c.Label], th.ID)
		}
	}
	assert.Equal(t, []string{"Today", "Yesterday", "Previous 7 Days", "Older"}, labels)
	assert.Equal(t, []string{"today", "midnight"}, ids["Today"])
	assert.Equal(t, []string{"yesterday"}, ids["Yesterday"])
	assert.Equal(t, []string{"week"}, ids["Previous 7 Days"])
	assert.Equal(t, []string{"older"}, ids["Older"])
}

func TestCategorizeThreads_Empty(t *testing.T) {
	assert.Empty(t, CategorizeThreads(nil, time.Now()))
}
