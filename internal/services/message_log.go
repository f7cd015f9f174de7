package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// IMessageLog is the append-only message store of inquiry threads. Messages
// are never rewritten; only their read and deleted flags change.
type IMessageLog interface {
	Append(ctx context.Context, msg *models.Message) error
	// List returns the live messages of a thread in (created_at, id) order.
	List(ctx context.Context, threadID utils.SixID) ([]models.Message, error)
	// FindByID also returns soft-deleted messages.
	FindByID(ctx context.Context, id utils.SixID) (*models.Message, error)
	MarkRead(ctx context.Context, id utils.SixID) error
	SoftDelete(ctx context.Context, id utils.SixID) error
}

const messagesCollection = "inquiry_messages"

type messageLog struct {
	db *mongo.Database
}

func NewMessageLog(db *mongo.Database) IMessageLog {
	return &messageLog{db: db}
}

func (l *messageLog) coll() *mongo.Collection {
	return l.db.Collection(messagesCollection)
}

func (l *messageLog) Append(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = models.Now()
	}
	if err := db.InsertOne(ctx, l.coll(), msg); err != nil {
		return fmt.Errorf("failed to append message to thread %s: %w", msg.ThreadID, err)
	}
	return nil
}

func (l *messageLog) List(ctx context.Context, threadID utils.SixID) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := l.coll().Find(ctx, bson.M{"thread_id": threadID, "deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of thread %s: %w", threadID, err)
	}
	defer cursor.Close(ctx)

	messages := []models.Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (l *messageLog) FindByID(ctx context.Context, id utils.SixID) (*models.Message, error) {
	var msg models.Message
	if err := l.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("message %s", id)
		}
		return nil, fmt.Errorf("failed to find message %s: %w", id, err)
	}
	return &msg, nil
}

func (l *messageLog) MarkRead(ctx context.Context, id utils.SixID) error {
	return l.set(ctx, id, bson.M{"is_read": true})
}

func (l *messageLog) SoftDelete(ctx context.Context, id utils.SixID) error {
	return l.set(ctx, id, bson.M{"deleted": true})
}

func (l *messageLog) set(ctx context.Context, id utils.SixID, fields bson.M) error {
	res, err := l.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("message %s", id)
	}
	return nil
}
