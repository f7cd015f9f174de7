package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/presence"
)

// IDeliveryFanout makes a new message durable and then pushes it to whoever
// is watching the thread.
type IDeliveryFanout interface {
	Publish(ctx context.Context, thread *models.InquiryThread, msg *models.Message) error
}

type deliveryFanout struct {
	messages IMessageLog
	threads  IThreadStore
	room     presence.Room
	log      *zap.Logger
}

func NewDeliveryFanout(messages IMessageLog, threads IThreadStore, room presence.Room, log *zap.Logger) IDeliveryFanout {
	return &deliveryFanout{messages: messages, threads: threads, room: room, log: log}
}

// Publish appends msg, marks the thread unread and broadcasts to the thread
// room. Nothing is pushed unless the append succeeded. Once the message is
// stored the push is attempted even if the unread flag could not be set, and
// push failures are never returned.
func (f *deliveryFanout) Publish(ctx context.Context, thread *models.InquiryThread, msg *models.Message) error {
	msg.ThreadID = thread.ID
	if err := f.messages.Append(ctx, msg); err != nil {
		return err
	}

	var markErr error
	if err := f.threads.MarkUnread(ctx, thread.ID, msg.CreatedAt); err != nil {
		markErr = fmt.Errorf("message %s stored but thread not flagged unread: %w", msg.ID, err)
		f.log.Error("Failed to flag thread unread", zap.Stringer("thread_id", thread.ID), zap.Error(err))
	} else {
		thread.IsRead = false
		thread.UpdatedAt = msg.CreatedAt
	}

	f.push(thread, msg)
	return markErr
}

func (f *deliveryFanout) push(thread *models.InquiryThread, msg *models.Message) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("Push to thread room panicked", zap.Stringer("thread_id", thread.ID), zap.Any("panic", r))
		}
	}()

	room := presence.ThreadRoom(thread.ID)
	delivered := f.room.Broadcast(room, presence.Event{Type: presence.TypeMessage, Room: room, Payload: msg})
	f.log.Debug("Message pushed",
		zap.Stringer("thread_id", thread.ID),
		zap.Stringer("message_id", msg.ID),
		zap.Int("delivered", delivered),
	)
}
