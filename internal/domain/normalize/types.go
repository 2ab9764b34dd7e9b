package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/okian/eventhub/internal/domain/model"
)

// Text is the provider's {text: "..."} wrapper.
type Text struct {
	Text string `json:"text"`
}

// Start holds the provider start timestamps.
type Start struct {
	Local    string `json:"local"`
	UTC      string `json:"utc,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Address is the expanded venue address.
type Address struct {
	LocalizedAddressDisplay string  `json:"localized_address_display"`
	Latitude                Numeric `json:"latitude"`
	Longitude               Numeric `json:"longitude"`
}

// Venue is the expanded venue object.
type Venue struct {
	Address *Address `json:"address"`
}

// Image is a single logo rendition.
type Image struct {
	URL string `json:"url"`
}

// Logo is the expanded logo object.
type Logo struct {
	Original *Image `json:"original"`
}

// ExternalItem is one raw event of the external search feed. Every nested
// object is optional.
type ExternalItem struct {
	ID          string  `json:"id"`
	Name        *Text   `json:"name,omitempty"`
	Description *Text   `json:"description,omitempty"`
	Start       *Start  `json:"start,omitempty"`
	Venue       *Venue  `json:"venue,omitempty"`
	Logo        *Logo   `json:"logo,omitempty"`
	URL         string  `json:"url,omitempty"`
	IsFree      bool    `json:"is_free"`
	CategoryID  *string `json:"category_id"`
}

// Row is one row of the relational events table, as returned by queries and
// carried in change notifications.
type Row struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ImageURL    string         `json:"image_url"`
	Date        string         `json:"date"`
	Time        string         `json:"time"`
	Location    model.Location `json:"location"`
	Price       Numeric        `json:"price"`
	Category    string         `json:"category"`
	HostID      string         `json:"host_id"`
	HostName    string         `json:"host_name"`
	CreatedAt   string         `json:"created_at"`
}

// Numeric decodes a JSON number or a numeric string. Anything else leaves it
// invalid without failing the surrounding document.
type Numeric struct {
	Value float64
	Valid bool
}

// NewNumeric returns a valid Numeric.
func NewNumeric(v float64) Numeric {
	return Numeric{Value: v, Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Numeric) UnmarshalJSON(b []byte) error {
	*n = Numeric{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil //nolint:nilerr // malformed strings decode as invalid
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil //nolint:nilerr // non-numeric values decode as invalid
	}
	*n = Numeric{Value: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Numeric) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}
