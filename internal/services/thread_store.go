package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// IThreadStore persists inquiry threads.
type IThreadStore interface {
	FindByID(ctx context.Context, id utils.SixID) (*models.InquiryThread, error)
	Create(ctx context.Context, thread *models.InquiryThread) error
	// FindOrCreateForUser returns the thread of (thread.ListingID,
	// thread.Sender.UserID), inserting thread when there is none yet.
	FindOrCreateForUser(ctx context.Context, thread *models.InquiryThread) (*models.InquiryThread, bool, error)
	MarkUnread(ctx context.Context, id utils.SixID, at time.Time) error
	MarkRead(ctx context.Context, id utils.SixID) error
	ListForOwner(ctx context.Context, ownerID utils.SixID, limit int) ([]models.InquiryThread, error)
}

const threadsCollection = "inquiry_threads"

type threadStore struct {
	db *mongo.Database
}

func NewThreadStore(db *mongo.Database) IThreadStore {
	return &threadStore{db: db}
}

func (s *threadStore) coll() *mongo.Collection {
	return s.db.Collection(threadsCollection)
}

func (s *threadStore) FindByID(ctx context.Context, id utils.SixID) (*models.InquiryThread, error) {
	var thread models.InquiryThread
	if err := s.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&thread); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("thread %s", id)
		}
		return nil, fmt.Errorf("failed to find thread %s: %w", id, err)
	}
	return &thread, nil
}

func (s *threadStore) Create(ctx context.Context, thread *models.InquiryThread) error {
	if err := db.InsertOne(ctx, s.coll(), thread); err != nil {
		return fmt.Errorf("failed to create thread: %w", err)
	}
	return nil
}

// FindOrCreateForUser is a single upsert on (listing_id, sender.user_id).
// Two concurrent upserts can both miss and race on the unique index; the
// loser retries and then finds the winner's thread.
func (s *threadStore) FindOrCreateForUser(ctx context.Context, thread *models.InquiryThread) (*models.InquiryThread, bool, error) {
	if thread.Sender.UserID == nil {
		return nil, false, fmt.Errorf("thread sender has no user id")
	}

	filter := bson.M{"listing_id": thread.ListingID, "sender.user_id": *thread.Sender.UserID}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var (
		stored  models.InquiryThread
		created bool
	)
	err := db.Try(func() error {
		thread.GenID()
		insert := bson.M{
			"_id":           thread.ID,
			"listing_title": thread.ListingTitle,
			"sender.name":   thread.Sender.Name,
			"sender.email":  thread.Sender.Email,
			"sender_key":    thread.SenderKey,
			"is_read":       thread.IsRead,
			"created_at":    thread.CreatedAt,
			"updated_at":    thread.UpdatedAt,
		}
		if thread.OwnerID != nil {
			insert["owner_id"] = *thread.OwnerID
		}
		if thread.Sender.Phone != "" {
			insert["sender.phone"] = thread.Sender.Phone
		}
		if thread.Sender.Company != "" {
			insert["sender.company"] = thread.Sender.Company
		}

		stored = models.InquiryThread{}
		if err := s.coll().FindOneAndUpdate(ctx, filter, bson.M{"$setOnInsert": insert}, opts).Decode(&stored); err != nil {
			return err
		}
		created = stored.ID == thread.ID
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to open thread: %w", err)
	}
	return &stored, created, nil
}

// MarkUnread flags the thread as having news for its owner.
func (s *threadStore) MarkUnread(ctx context.Context, id utils.SixID, at time.Time) error {
	return s.update(ctx, id, bson.M{"is_read": false, "updated_at": at})
}

func (s *threadStore) MarkRead(ctx context.Context, id utils.SixID) error {
	return s.update(ctx, id, bson.M{"is_read": true})
}

func (s *threadStore) update(ctx context.Context, id utils.SixID, set bson.M) error {
	res, err := s.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update thread %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperrors.NotFound("thread %s", id)
	}
	return nil
}

// ListForOwner returns the threads on the owner's listings, most recently
// active first.
func (s *threadStore) ListForOwner(ctx context.Context, ownerID utils.SixID, limit int) ([]models.InquiryThread, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := s.coll().Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer cursor.Close(ctx)

	threads := []models.InquiryThread{}
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, fmt.Errorf("failed to decode threads: %w", err)
	}
	return threads, nil
}
