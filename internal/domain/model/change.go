package model

// ChangeType is the kind of a relational store notification.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Valid reports whether t is one of the known change types.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// Change is a single insert/update/delete notification for the events table.
// For deletes only Record.ID is meaningful.
type Change struct {
	Type   ChangeType `json:"type"`
	Record Event      `json:"record"`
}
