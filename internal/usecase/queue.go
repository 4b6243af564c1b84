package usecase

import (
	"sort"

	"github.com/Misaka-0x447f/project-DaBES/internal/domain"
)

// intentQueue holds submitted intents until they execute, are rejected or withdrawn.
type intentQueue struct {
	items []domain.Intent
}

func (q *intentQueue) push(i domain.Intent) {
	q.items = append(q.items, i)
}

func (q *intentQueue) remove(id domain.IntentID) bool {
	for n, i := range q.items {
		if i.ID == id {
			q.items = append(q.items[:n], q.items[n+1:]...)
			return true
		}
	}
	return false
}

func (q *intentQueue) len() int { return len(q.items) }

// snapshot returns the queued intents in submission order.
func (q *intentQueue) snapshot() []domain.Intent {
	return append([]domain.Intent(nil), q.items...)
}

// ordered returns the intents by effective priority descending, then by id.
// Deferred intents keep their id, so they keep their place among equal priorities.
func (q *intentQueue) ordered(priority func(domain.Intent) int) []domain.Intent {
	result := q.snapshot()
	sort.SliceStable(result, func(a, b int) bool {
		pa, pb := priority(result[a]), priority(result[b])
		if pa != pb {
			return pa > pb
		}
		return result[a].ID < result[b].ID
	})
	return result
}
