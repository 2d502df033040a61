package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/blog-publisher/internal/domain"
)

func TestIssueToken(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)

	signed, err := auth.IssueToken("ci", domain.RolePublisher)
	require.NoError(t, err)

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
	assert.Equal(t, domain.RolePublisher, claims.Role)

	_, err = auth.IssueToken("ci", "admin")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = auth.IssueToken("", domain.RoleEditor)
	assert.Error(t, err)
}

func TestNewAuthServicePanicsWithoutSecret(t *testing.T) {
	assert.Panics(t, func() { NewAuthService("", time.Minute) })
}
