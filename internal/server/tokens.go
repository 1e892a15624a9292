package server

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// issueAccessToken signs a short-lived JWT carrying the user id.
func (s *Server) issueAccessToken(userID uint) (string, error) {
	ttl := time.Duration(s.cfg.Auth.AccessTTLHours) * time.Hour
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Auth.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// issueRefreshToken creates an opaque refresh token and stores it in the
// session store with the configured TTL.
func (s *Server) issueRefreshToken(ctx context.Context, userID uint) (string, error) {
	token := uuid.NewString()
	ttl := time.Duration(s.cfg.Auth.RefreshTTLHours) * time.Hour

	if err := s.sessions.SaveRefreshToken(ctx, token, userID, ttl); err != nil {
		return "", err
	}
	return token, nil
}
