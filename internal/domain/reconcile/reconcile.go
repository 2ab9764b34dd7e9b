// Package reconcile applies live change notifications to an event collection.
package reconcile

import (
	"github.com/okian/eventhub/internal/domain/model"
)

// Apply returns the collection with change applied and whether it differs from
// the input. The input slice is never modified.
//
//   - insert appends the record unless an event with the same id exists.
//   - update replaces the event with the same id in place; unknown ids are ignored.
//   - delete removes every event with the record's id.
//
// Unknown change types leave the collection untouched.
func Apply(events []model.Event, change model.Change) ([]model.Event, bool) {
	id := change.Record.ID
	if id == "" {
		return events, false
	}

	switch change.Type {
	case model.ChangeInsert:
		if indexOf(events, id) >= 0 {
			return events, false
		}
		out := make([]model.Event, 0, len(events)+1)
		out = append(out, events...)
		return append(out, change.Record), true

	case model.ChangeUpdate:
		i := indexOf(events, id)
		if i < 0 {
			return events, false
		}
		out := model.Clone(events)
		out[i] = change.Record
		return out, true

	case model.ChangeDelete:
		if indexOf(events, id) < 0 {
			return events, false
		}
		out := make([]model.Event, 0, len(events)-1)
		for _, e := range events {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out, true
	}
	return events, false
}

func indexOf(events []model.Event, id string) int {
	for i := range events {
		if events[i].ID == id {
			return i
		}
	}
	return -1
}
