// Package seed fills an empty database with demo users and listings.
package seed

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
)

const (
	usersCollection    = "users"
	listingsCollection = "listings"
	demoUsers          = 5
)

var categories = []string{"furniture", "bikes", "electronics", "garden", "books"}

// Users returns n fake directory users. The first one is an administrator.
func Users(faker *gofakeit.Faker, n int) []*models.User {
	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, &models.User{
			Name:      faker.Name(),
			Email:     faker.Email(),
			IsAdmin:   i == 0,
			CreatedAt: models.Now(),
		})
	}
	return users
}

// Listings returns n fake listings spread across owners. Roughly a third
// stay pending so the moderation queue is never empty.
func Listings(faker *gofakeit.Faker, owners []*models.User, n int) []*models.Listing {
	listings := make([]*models.Listing, 0, n)
	for i := 0; i < n; i++ {
		now := models.Now()
		price := faker.Price(5, 900)
		l := &models.Listing{
			Title:        faker.ProductName(),
			Description:  faker.Sentence(14),
			Category:     categories[faker.IntN(len(categories))],
			Price:        &price,
			Images:       []string{},
			ContactEmail: faker.Email(),
			OwnerName:    faker.Name(),
			Status:       models.ListingStatusApproved,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if len(owners) > 0 {
			owner := owners[i%len(owners)]
			l.OwnerID = &owner.ID
			l.OwnerName = owner.Name
			l.ContactEmail = owner.Email
		}
		if i%3 == 0 {
			l.Status = models.ListingStatusPending
		}
		listings = append(listings, l)
	}
	return listings
}

// Run inserts demo users and count listings.
func Run(ctx context.Context, database *mongo.Database, count int, log *zap.Logger) error {
	faker := gofakeit.New(0)

	users := Users(faker, demoUsers)
	for _, u := range users {
		if err := db.InsertOne(ctx, database.Collection(usersCollection), u); err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
	}

	for _, l := range Listings(faker, users, count) {
		if err := db.InsertOne(ctx, database.Collection(listingsCollection), l); err != nil {
			return fmt.Errorf("seed listing: %w", err)
		}
	}

	log.Info("Seeded demo data",
		zap.Int("users", len(users)),
		zap.Int("listings", count),
		zap.String("admin_email", users[0].Email))
	return nil
}
