package services

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"greendrake/marketdesk/internal/db"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// setupMigratedDB returns an empty database with the production indexes.
func setupMigratedDB(t *testing.T, name string) *mongo.Database {
	t.Helper()
	database := utils.SetupTestDB(t, name)
	require.NoError(t, db.Migrate(database.Client(), database.Name(), zap.NewNop()))
	return database
}

func insertUser(t *testing.T, database *mongo.Database, mutate func(u *models.User)) *models.User {
	t.Helper()
	user := &models.User{
		Name:      gofakeit.Name(),
		Email:     gofakeit.Email(),
		CreatedAt: models.Now(),
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.InsertOne(context.Background(), database.Collection(usersCollection), user))
	return user
}

func insertListing(t *testing.T, database *mongo.Database, owner *models.User, status models.ListingStatus) *models.Listing {
	t.Helper()
	now := models.Now()
	listing := &models.Listing{
		OwnerName:    owner.Name,
		ContactEmail: owner.Email,
		Title:        gofakeit.ProductName(),
		Description:  gofakeit.Sentence(12),
		Images:       []string{},
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	listing.OwnerID = owner.ID.Ptr()
	require.NoError(t, db.InsertOne(context.Background(), database.Collection(listingsCollection), listing))
	return listing
}

func countDocs(t *testing.T, coll *mongo.Collection, filter interface{}) int64 {
	t.Helper()
	n, err := coll.CountDocuments(context.Background(), filter)
	require.NoError(t, err)
	return n
}
