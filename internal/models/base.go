package models

import (
	"time"

	"greendrake/marketdesk/internal/utils"
)

// IBase is implemented by every stored document so inserts can regenerate
// a colliding id.
type IBase interface {
	GenIDIfEmpty()
	GenID()
	GetID() utils.SixID
}

type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) GetID() utils.SixID {
	return m.ID
}

// Now is the store clock. Mongo keeps milliseconds, so values are truncated
// to keep in-memory and stored ordering identical.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
