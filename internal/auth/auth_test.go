package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
)

var testKey = []byte("some_secret")

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(testKey, time.Hour)

	token, err := svc.IssueToken(42)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	userId, err := svc.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, 42, userId)
}

func TestJWTService_ValidateToken(t *testing.T) {
	svc := NewJWTService(testKey, time.Hour)

	expired, err := NewJWTService(testKey, -time.Minute).IssueToken(1)
	assert.NoError(t, err)

	otherKey, err := NewJWTService([]byte("other"), time.Hour).IssueToken(1)
	assert.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		expClaim: time.Now().Add(time.Hour).Unix(),
	}).SignedString(testKey)
	assert.NoError(t, err)

	tcases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", expired},
		{"wrong key", otherKey},
		{"missing user id", noUser},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tc.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("s3cret")
	assert.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "wrong"))
}
