package model

import "strings"

// Category is the closed set of event categories.
type Category string

const (
	CategoryMusic      Category = "music"
	CategoryTech       Category = "tech"
	CategoryFood       Category = "food"
	CategoryArt        Category = "art"
	CategorySports     Category = "sports"
	CategoryEducation  Category = "education"
	CategoryNetworking Category = "networking"
	CategoryFree       Category = "free"
	CategoryOther      Category = "other"
)

// CategoryAll is the identity filter value. It is never stored on an Event.
const CategoryAll Category = "all"

var categories = map[Category]struct{}{
	CategoryMusic:      {},
	CategoryTech:       {},
	CategoryFood:       {},
	CategoryArt:        {},
	CategorySports:     {},
	CategoryEducation:  {},
	CategoryNetworking: {},
	CategoryFree:       {},
	CategoryOther:      {},
}

// Categories returns every member of the closed enumeration.
func Categories() []Category {
	return []Category{
		CategoryMusic, CategoryTech, CategoryFood, CategoryArt, CategorySports,
		CategoryEducation, CategoryNetworking, CategoryFree, CategoryOther,
	}
}

// Valid reports whether c is a member of the closed enumeration.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// ParseCategory resolves any string to a category. Unknown values map to other.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

// ParseFilter resolves a filter value. It accepts "all" or any valid category.
func ParseFilter(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == CategoryAll || c.Valid() {
		return c, true
	}
	return "", false
}

// FilterByCategory returns the events matching c, preserving relative order.
// CategoryAll returns a copy of every event.
func FilterByCategory(events []Event, c Category) []Event {
	if c == CategoryAll {
		return Clone(events)
	}
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Category == c {
			out = append(out, e)
		}
	}
	return out
}
