package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ycoin/marketsim/internal/engine"
	"github.com/ycoin/marketsim/internal/models"
)

// Service handles user registration and login against the engine's user
// registry. The core itself trusts the username this service resolves
// from a token and never re-validates it.
type Service struct {
	Core   *engine.Core
	secret []byte
}

// NewService creates an auth service signing tokens with secret.
func NewService(core *engine.Core, secret string) *Service {
	return &Service{Core: core, secret: []byte(secret)}
}

// Register creates a new user with a hashed password and the starting
// cash grant.
func (s *Service) Register(username, password string) (models.User, error) {
	if username == "" {
		return models.User{}, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return models.User{}, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return models.User{}, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return models.User{}, fmt.Errorf("password too long (max 100 characters)")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.Core.Register(username, string(hashed))
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Login verifies credentials and generates a JWT.
func (s *Service) Login(username, password string) (string, error) {
	user, ok := s.Core.Lookup(username)
	if !ok {
		return "", fmt.Errorf("login %s: %w", username, models.ErrUnknownUser)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// UserFromToken extracts the username from a JWT.
func (s *Service) UserFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", fmt.Errorf("invalid token claims")
	}
	return username, nil
}
