package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"greendrake/marketdesk/internal/apperrors"
	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// IUserService is the read side of the user directory. Accounts are managed
// elsewhere; this service only resolves notification recipients.
type IUserService interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
}

const usersCollection = "users"

type userService struct {
	db *mongo.Database
}

func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

// FindByID returns a live (not deleted) user.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	filter := bson.M{"_id": userID, "deleted": bson.M{"$ne": true}}

	err := s.db.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user %s", userID)
		}
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID.String(), err)
	}
	return &user, nil
}
