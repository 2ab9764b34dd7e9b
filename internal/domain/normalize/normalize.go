// Package normalize converts source-native records into canonical events.
//
// Every function here is pure and total: no I/O, and no structurally valid
// input makes it fail. Items that cannot be placed on a calendar are dropped.
package normalize

import (
	"strings"
	"time"

	"github.com/okian/eventhub/internal/domain/model"
)

// Defaults applied when the external feed omits optional data.
const (
	DefaultTitle       = "Untitled Event"
	DefaultDescription = "No description available."
	DefaultAddress     = "Location TBD"
	PlaceholderImage   = "https://images.unsplash.com/photo-1501281668745-f7f57925c3b4?ixlib=rb-4.0.3&auto=format&fit=crop&w=1000&q=80"
)

// startLayouts are tried in order. Offsets, when present, are kept as-is.
var startLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

var categoryCodes = map[string]model.Category{
	"102": model.CategoryTech,
	"103": model.CategoryMusic,
	"105": model.CategoryArt,
	"107": model.CategoryNetworking,
	"108": model.CategoryEducation,
	"110": model.CategoryFood,
	"113": model.CategorySports,
}

// MapCategory resolves a provider category code. Unknown or missing codes map to other.
func MapCategory(code *string) model.Category {
	if code == nil {
		return model.CategoryOther
	}
	if c, ok := categoryCodes[strings.TrimSpace(*code)]; ok {
		return c
	}
	return model.CategoryOther
}

// ExternalEvents normalizes a page of feed items. Items without a usable start
// timestamp are dropped; order is preserved otherwise.
func ExternalEvents(items []ExternalItem, location string, now time.Time) []model.Event {
	out := make([]model.Event, 0, len(items))
	for i := range items {
		if e, ok := ExternalEvent(&items[i], location, now); ok {
			out = append(out, e)
		}
	}
	return out
}

// ExternalEvent normalizes a single feed item. ok is false when the item has
// no usable start timestamp.
func ExternalEvent(item *ExternalItem, location string, now time.Time) (model.Event, bool) {
	if item == nil || item.Start == nil {
		return model.Event{}, false
	}
	start := item.Start.Local
	if strings.TrimSpace(start) == "" {
		start = item.Start.UTC
	}
	date, clock, ok := SplitStart(start)
	if !ok {
		return model.Event{}, false
	}

	e := model.Event{
		ID:          model.ExternalID(item.ID),
		Title:       textOr(item.Name, DefaultTitle),
		Description: textOr(item.Description, DefaultDescription),
		ImageURL:    PlaceholderImage,
		Date:        date,
		Time:        clock,
		Location: model.Location{
			Address: DefaultAddress,
			City:    City(location),
		},
		Price:       model.PriceUnknown,
		Category:    MapCategory(item.CategoryID),
		HostID:      model.ExternalHostID,
		HostName:    model.ExternalHostName,
		CreatedAt:   now.UTC().Format(time.RFC3339),
		Source:      model.ExternalSource,
		ExternalURL: item.URL,
	}
	if item.IsFree {
		e.Price = model.PriceFree
	}
	if item.Logo != nil && item.Logo.Original != nil && item.Logo.Original.URL != "" {
		e.ImageURL = item.Logo.Original.URL
	}
	if item.Venue != nil && item.Venue.Address != nil {
		addr := item.Venue.Address
		if addr.LocalizedAddressDisplay != "" {
			e.Location.Address = addr.LocalizedAddressDisplay
		}
		if addr.Latitude.Valid && addr.Longitude.Valid {
			e.Location.Coordinates = &model.Coordinates{
				Latitude:  addr.Latitude.Value,
				Longitude: addr.Longitude.Value,
			}
		}
	}
	return e, true
}

// SplitStart splits a start timestamp into YYYY-MM-DD and HH:MM in the
// timestamp's own offset. Timestamps without an offset are taken at face value.
func SplitStart(s string) (date, clock string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	for _, layout := range startLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Format(model.DateLayout), t.Format(model.TimeLayout), true
		}
	}
	return "", "", false
}

// City returns the first comma-separated part of a location query.
func City(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}

// RowEvent maps a relational row field for field. Rows are assumed valid.
func RowEvent(row Row) model.Event {
	return model.Event{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		ImageURL:    row.ImageURL,
		Date:        trimTo(row.Date, len(model.DateLayout)),
		Time:        trimTo(row.Time, len(model.TimeLayout)),
		Location:    row.Location,
		Price:       row.Price.Value,
		Category:    model.ParseCategory(row.Category),
		HostID:      row.HostID,
		HostName:    row.HostName,
		CreatedAt:   timestamp(row.CreatedAt),
	}
}

func textOr(t *Text, fallback string) string {
	if t == nil || strings.TrimSpace(t.Text) == "" {
		return fallback
	}
	return t.Text
}

func trimTo(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// timestamp canonicalizes store timestamps to RFC3339 UTC, keeping unparseable
// values unchanged.
func timestamp(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339Nano)
}
