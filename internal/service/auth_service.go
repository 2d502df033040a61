package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"alcyxob/blog-publisher/internal/domain"
)

var (
	ErrInvalidRole     = errors.New("invalid role")
	ErrTokenGeneration = errors.New("failed to generate authentication token")
)

// AuthService issues the bearer tokens the HTTP API accepts.
type AuthService interface {
	IssueToken(subject string, role domain.Role) (string, error)
	GetJWTSecret() string
}

type authService struct {
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewAuthService(jwtSecret string, jwtExpiration time.Duration) AuthService {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty")
	}
	if jwtExpiration <= 0 {
		jwtExpiration = time.Hour
	}
	return &authService{
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
	}
}

// TokenClaims is the JWT payload shared with the API middleware.
type TokenClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

func (s *authService) IssueToken(subject string, role domain.Role) (string, error) {
	if subject == "" {
		return "", errors.New("token subject cannot be empty")
	}
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	now := time.Now()
	claims := &TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "blog-publisher",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", ErrTokenGeneration
	}
	return signed, nil
}

// GetJWTSecret returns the JWT secret for middleware authentication
func (s *authService) GetJWTSecret() string {
	return s.jwtSecret
}
