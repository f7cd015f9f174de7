package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/config"
	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/storage"
	"greendrake/marketdesk/internal/utils"
)

// SubmitListingRequest is the payload of a new listing.
type SubmitListingRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Price        *float64 `json:"price"`
	ContactName  string   `json:"contactName"`
	ContactEmail string   `json:"contactEmail"`
	// Images must be empty. Photos are uploaded after creation through
	// AddImage so that every stored key lives under the listing's prefix.
	Images []string `json:"images"`
}

// IListingService defines the interface for listing operations.
type IListingService interface {
	CreateListing(ctx context.Context, req SubmitListingRequest, actor *models.Identity) (*models.Listing, error)
	FindListingByID(ctx context.Context, id utils.SixID) (*models.Listing, error)
	GetListing(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error)
	ListApproved(ctx context.Context, limit, skip int) ([]models.Listing, error)
	ListByStatus(ctx context.Context, status models.ListingStatus, limit, skip int) ([]models.Listing, error)
	Stats(ctx context.Context) (*models.ListingStats, error)
	AuthorizeEdit(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error)
	AddImage(ctx context.Context, id utils.SixID, actor *models.Identity, key string) (*models.Listing, error)
}

const (
	listingsCollection = "listings"

	defaultPageSize   = 20
	maxPageSize       = 100
	maxTitleLength    = 200
	maxListingImages  = 20
	maxListingDescLen = 10000
)

type listingService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewListingService creates a new ListingService.
func NewListingService(db *mongo.Database, cfg *config.Config) IListingService {
	return &listingService{db: db, cfg: cfg}
}

func (s *listingService) coll() *mongo.Collection {
	return s.db.Collection(listingsCollection)
}

// CreateListing stores a new listing in pending status. An authenticated
// caller becomes its owner.
func (s *listingService) CreateListing(ctx context.Context, req SubmitListingRequest, actor *models.Identity) (*models.Listing, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	contactName := strings.TrimSpace(req.ContactName)
	contactEmail := strings.TrimSpace(req.ContactEmail)

	if contactName == "" && actor.Authenticated() {
		contactName = actor.Name
	}
	if contactEmail == "" && actor.Authenticated() {
		contactEmail = actor.Email
	}

	switch {
	case title == "":
		return nil, apperrors.Validation("title is required")
	case len(title) > maxTitleLength:
		return nil, apperrors.Validation("title must be at most %d characters", maxTitleLength)
	case description == "":
		return nil, apperrors.Validation("description is required")
	case len(description) > maxListingDescLen:
		return nil, apperrors.Validation("description must be at most %d characters", maxListingDescLen)
	case contactName == "":
		return nil, apperrors.Validation("contact name is required")
	case len(req.Images) > 0:
		return nil, apperrors.Validation("images are uploaded through /v1/listing/:id/image after the listing is created")
	case req.Price != nil && *req.Price < 0:
		return nil, apperrors.Validation("price must not be negative")
	}
	if contactEmail != "" {
		if _, err := mail.ParseAddress(contactEmail); err != nil {
			return nil, apperrors.Validation("contact email is invalid")
		}
	}

	now := models.Now()
	listing := &models.Listing{
		OwnerName:    contactName,
		ContactEmail: contactEmail,
		Title:        title,
		Description:  description,
		Category:     strings.TrimSpace(req.Category),
		Price:        req.Price,
		Images:       []string{},
		Status:       models.ListingStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if actor.Authenticated() {
		listing.OwnerID = actor.UserID.Ptr()
	}

	if err := db.InsertOne(ctx, s.coll(), listing); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	return listing, nil
}

// FindListingByID returns the listing in any status.
func (s *listingService) FindListingByID(ctx context.Context, id utils.SixID) (*models.Listing, error) {
	var listing models.Listing
	if err := s.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&listing); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("listing %s", id)
		}
		return nil, fmt.Errorf("failed to find listing %s: %w", id, err)
	}
	return &listing, nil
}

// GetListing returns approved listings to anyone, and listings in any status
// to their owner and to admins. Everything else is reported as not found.
func (s *listingService) GetListing(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error) {
	listing, err := s.FindListingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingStatusApproved && !actor.IsAdmin() && !listing.IsOwnedBy(actor) {
		return nil, apperrors.NotFound("listing %s", id)
	}
	return listing, nil
}

// AuthorizeEdit returns the listing when the actor may change it: its owner
// or an admin.
func (s *listingService) AuthorizeEdit(ctx context.Context, id utils.SixID, actor *models.Identity) (*models.Listing, error) {
	if !actor.Authenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	listing, err := s.FindListingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !listing.IsOwnedBy(actor) {
		return nil, apperrors.Forbidden("listing %s belongs to someone else", id)
	}
	return listing, nil
}

// AddImage records an uploaded photo. Only keys issued for this listing are
// accepted.
func (s *listingService) AddImage(ctx context.Context, id utils.SixID, actor *models.Identity, key string) (*models.Listing, error) {
	if !storage.IsListingImage(id, key) {
		return nil, apperrors.Validation("image %q was not issued for listing %s", key, id)
	}
	if _, err := s.AuthorizeEdit(ctx, id, actor); err != nil {
		return nil, err
	}

	// The positional filter caps the array without a read-modify-write race.
	filter := bson.M{"_id": id, fmt.Sprintf("images.%d", maxListingImages-1): bson.M{"$exists": false}}
	update := bson.M{
		"$push": bson.M{"images": key},
		"$set":  bson.M{"updated_at": models.Now()},
	}
	var listing models.Listing
	err := s.coll().FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&listing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.Validation("at most %d images are allowed", maxListingImages)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add image to listing %s: %w", id, err)
	}
	return &listing, nil
}

func (s *listingService) ListApproved(ctx context.Context, limit, skip int) ([]models.Listing, error) {
	return s.find(ctx, bson.M{"status": models.ListingStatusApproved}, limit, skip)
}

// ListByStatus feeds the admin queue. Oldest first, so pending listings are
// reviewed in submission order.
func (s *listingService) ListByStatus(ctx context.Context, status models.ListingStatus, limit, skip int) ([]models.Listing, error) {
	if !status.Valid() {
		return nil, apperrors.Validation("unknown status %q", status)
	}
	return s.find(ctx, bson.M{"status": status}, limit, skip, bson.E{Key: "created_at", Value: 1})
}

func (s *listingService) find(ctx context.Context, filter bson.M, limit, skip int, sort ...bson.E) ([]models.Listing, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	skip = max(skip, 0)
	if len(sort) == 0 {
		sort = []bson.E{{Key: "created_at", Value: -1}}
	}

	opts := options.Find().
		SetSort(append(bson.D(sort), bson.E{Key: "_id", Value: 1})).
		SetLimit(int64(limit)).
		SetSkip(int64(skip))
	cursor, err := s.coll().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer cursor.Close(ctx)

	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}
	return listings, nil
}

// Stats counts listings per moderation status.
func (s *listingService) Stats(ctx context.Context) (*models.ListingStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate listing stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.ListingStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode listing stats: %w", err)
	}

	stats := &models.ListingStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case models.ListingStatusPending:
			stats.Pending = row.Count
		case models.ListingStatusApproved:
			stats.Approved = row.Count
		case models.ListingStatusRejected:
			stats.Rejected = row.Count
		}
	}
	return stats, nil
}
