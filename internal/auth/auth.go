package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenValidator resolves an opaque session token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (int, error)
}

type TokenIssuer interface {
	IssueToken(userId int) (string, error)
}

// JWTService issues and validates HS256 session tokens.
type JWTService struct {
	signingKey []byte
	expiration time.Duration
}

func NewJWTService(signingKey []byte, expiration time.Duration) *JWTService {
	return &JWTService{signingKey: signingKey, expiration: expiration}
}

func (s *JWTService) Expiration() time.Duration {
	return s.expiration
}

func (s *JWTService) IssueToken(userId int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		expClaim:    time.Now().Add(s.expiration).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (int, error) {
	if tokenString == "" {
		return 0, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: parse token: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%w: invalid token claims", ErrInvalidToken)
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return 0, fmt.Errorf("%w: invalid user id claim", ErrInvalidToken)
	}

	return int(userId), nil
}

func HashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func VerifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
