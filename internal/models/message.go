package models

import (
	"bytes"
	"time"

	"greendrake/marketdesk/internal/utils"
)

// SenderRef is the author of a message as recorded at send time.
type SenderRef struct {
	UserID *utils.SixID    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name   string          `bson:"name" json:"name"`
	Email  string          `bson:"email,omitempty" json:"email,omitempty"`
	Role   ParticipantRole `bson:"role" json:"role"`
}

// Message is one entry of a thread's log. Only IsRead and Deleted ever change.
type Message struct {
	Base       `bson:",inline"`
	ThreadID   utils.SixID `bson:"thread_id" json:"thread_id"`
	Sender     SenderRef   `bson:"sender" json:"sender"`
	Body       string      `bson:"body" json:"body"`
	Attachment *string     `bson:"attachment,omitempty" json:"attachment,omitempty"`
	IsRead     bool        `bson:"is_read" json:"is_read"`
	Deleted    bool        `bson:"deleted" json:"-"`
	CreatedAt  time.Time   `bson:"created_at" json:"created_at"`
}

// MessageLess orders messages by (created_at, id).
func MessageLess(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
