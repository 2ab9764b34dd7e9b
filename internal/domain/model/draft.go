package model

import (
	"fmt"
	"strings"
	"time"
)

// Layouts of the denormalized date and time fields.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Draft is a first-party event before the store assigns its id and createdAt.
type Draft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"imageUrl"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Location    Location `json:"location"`
	Price       float64  `json:"price"`
	Category    Category `json:"category"`
	HostID      string   `json:"hostId"`
	HostName    string   `json:"hostName"`
}

// Validate checks the draft before it is sent to the store.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Title) == "":
		return fmt.Errorf("%w: missing title", ErrInvalidDraft)
	case strings.TrimSpace(d.HostID) == "":
		return fmt.Errorf("%w: missing hostId", ErrInvalidDraft)
	case !d.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidDraft, d.Category)
	case d.Price < 0 && d.Price != PriceUnknown:
		return fmt.Errorf("%w: price must be -1 or non-negative", ErrInvalidDraft)
	}
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidDraft)
	}
	if _, err := time.Parse(TimeLayout, d.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidDraft)
	}
	return nil
}
