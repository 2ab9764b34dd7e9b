// Package model contains domain models passed between layers.
package model

import "strings"

// ExternalIDPrefix namespaces ids of events that come from the external feed.
const ExternalIDPrefix = "eb_"

// Host and source identity used for events that come from the external feed.
const (
	ExternalHostID   = "eventbrite"
	ExternalHostName = "Eventbrite"
	ExternalSource   = "Eventbrite"
)

// Price sentinels. Any positive price is an amount in currency units.
const (
	PriceFree    = 0.0
	PriceUnknown = -1.0
)

// PriceKind is a tagged view over the numeric price sentinel.
type PriceKind int

const (
	PriceKindFree PriceKind = iota
	PriceKindPriced
	PriceKindUnknown
)

// Coordinates are only present when the source provided both values.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location describes where an event happens.
type Location struct {
	Address     string       `json:"address"`
	City        string       `json:"city"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Event is the canonical event shape shared by every source.
// Values are replaced wholesale on update, never patched field by field.
type Event struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	Date        string   `json:"date"` // YYYY-MM-DD
	Time        string   `json:"time"` // HH:MM, venue local
	Location    Location `json:"location"`
	Price       float64  `json:"price"`
	Category    Category `json:"category"`
	HostID      string   `json:"hostId"`
	HostName    string   `json:"hostName"`
	CreatedAt   string   `json:"createdAt"`
	Source      string   `json:"source,omitempty"`
	ExternalURL string   `json:"externalUrl,omitempty"`
}

// IsExternal reports whether the event came from the external feed.
func (e Event) IsExternal() bool {
	return IsExternalID(e.ID)
}

// PriceKind classifies the numeric price.
func (e Event) PriceKind() PriceKind {
	switch {
	case e.Price == PriceFree:
		return PriceKindFree
	case e.Price > 0:
		return PriceKindPriced
	default:
		return PriceKindUnknown
	}
}

// IsExternalID reports whether id carries the external feed prefix.
func IsExternalID(id string) bool {
	return strings.HasPrefix(id, ExternalIDPrefix)
}

// ExternalID builds a namespaced id for an external feed item.
func ExternalID(nativeID string) string {
	return ExternalIDPrefix + nativeID
}

// Clone returns a copy of events that shares no backing array with the input.
func Clone(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
