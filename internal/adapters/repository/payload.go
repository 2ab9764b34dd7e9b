package repository

import (
	"encoding/json"
	"fmt"

	"github.com/okian/eventhub/internal/domain/model"
	"github.com/okian/eventhub/internal/domain/normalize"
)

// notification is the JSON document emitted by the notify_events_change
// trigger. Partial is set when the row was too large for a notification and
// only the id was sent.
type notification struct {
	Type    model.ChangeType `json:"type"`
	Record  normalize.Row    `json:"record"`
	Partial bool             `json:"partial,omitempty"`
}

// DecodeNotification parses a change payload. partial reports that the
// record only carries its id.
func DecodeNotification(payload string) (c model.Change, partial bool, err error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return model.Change{}, false, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if !n.Type.Valid() {
		return model.Change{}, false, fmt.Errorf("%w: unknown type %q", ErrInvalidPayload, n.Type)
	}
	if n.Record.ID == "" {
		return model.Change{}, false, fmt.Errorf("%w: missing record id", ErrInvalidPayload)
	}
	return model.Change{Type: n.Type, Record: normalize.RowEvent(n.Record)}, n.Partial, nil
}
