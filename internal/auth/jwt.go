package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"greendrake/marketdesk/internal/models"
	"greendrake/marketdesk/internal/utils"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Identity converts validated claims into the request identity.
func (c *Claims) Identity() (*models.Identity, error) {
	id, err := utils.ParseSixID(c.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id claim: %w", err)
	}
	role := models.RoleUser
	if c.IsAdmin {
		role = models.RoleAdmin
	}
	return &models.Identity{UserID: id, Name: c.Name, Email: c.Email, Role: role}, nil
}

// GenerateJWT creates a new JWT for an authenticated identity.
func GenerateJWT(identity *models.Identity, secretKey string, ttl time.Duration) (string, error) {
	if !identity.Authenticated() {
		return "", fmt.Errorf("cannot issue a token without a user id")
	}
	now := time.Now()
	claims := &Claims{
		UserID:  identity.UserID.String(),
		Name:    identity.Name,
		Email:   identity.Email,
		IsAdmin: identity.IsAdmin(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   identity.UserID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid JWT")
	}

	return claims, nil
}
