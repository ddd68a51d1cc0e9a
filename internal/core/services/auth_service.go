package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duocall/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type AuthService interface {
	// Login checks the password and issues a token binding username to roomID.
	Login(ctx context.Context, username, password string, roomID domain.RoomID) (string, error)
	GenerateToken(username domain.Username, roomID domain.RoomID) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Claims carries the identity a signaling connection is bound to. Older
// tokens spell the room claim room_id; both spellings are accepted.
type Claims struct {
	Username     domain.Username `json:"username"`
	RoomID       domain.RoomID   `json:"roomId,omitempty"`
	LegacyRoomID domain.RoomID   `json:"room_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Room() domain.RoomID {
	if c.RoomID != "" {
		return c.RoomID
	}
	return c.LegacyRoomID
}

type authService struct {
	jwtSecret   []byte
	tokenTTL    time.Duration
	credentials *CredentialStore
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration, credentials *CredentialStore) AuthService {
	return &authService{
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		credentials: credentials,
	}
}

func (s *authService) Login(ctx context.Context, username, password string, roomID domain.RoomID) (string, error) {
	if s.credentials == nil {
		return "", domain.ErrInvalidCredential
	}
	if err := s.credentials.Verify(username, password); err != nil {
		return "", err
	}
	return s.GenerateToken(domain.Username(username), roomID)
}

func (s *authService) GenerateToken(username domain.Username, roomID domain.RoomID) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: username,
		RoomID:   roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(username),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Username == "" || claims.Room() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
