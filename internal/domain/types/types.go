// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/eventhub/internal/domain/model"
)

// EventList is a read view over one of the aggregated collections.
type EventList struct {
	SelectedCategory model.Category `json:"selectedCategory"`
	Count            int            `json:"count"`
	Events           []model.Event  `json:"events"`
}

// Snapshot is a consistent copy of the aggregate state, minus the collections.
type Snapshot struct {
	Sources          map[string]model.SourceStatus `json:"sources"`
	SelectedCategory model.Category                `json:"selectedCategory"`
	IsLoading        bool                          `json:"isLoading"`
	Error            *string                       `json:"error"`
	LastFetched      *time.Time                    `json:"lastFetched"`
	EventCount       int                           `json:"eventCount"`
	FilteredCount    int                           `json:"filteredCount"`
}

// NewEventList builds an EventList, never encoding a nil slice.
func NewEventList(c model.Category, events []model.Event) EventList {
	if events == nil {
		events = []model.Event{}
	}
	return EventList{SelectedCategory: c, Count: len(events), Events: events}
}
