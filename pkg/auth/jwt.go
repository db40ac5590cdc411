package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const issuer = "pneuscope-api"

// Subject is the identity a token is minted for.
type Subject struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Role   string
}

// Claims are the JWT claims carried by an access token.
type Claims struct {
	UserID uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// TokenID returns the jti used to revoke the token.
func (c *Claims) TokenID() string {
	return c.ID
}

// Expiry returns the expiry, or the zero time when unset.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

type JWTService interface {
	GenerateAccessToken(subject Subject) (string, *Claims, error)
	ValidateToken(token string) (*Claims, error)
	Expiry() time.Duration
}

type hmacService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWTService signs tokens with HS256.
func NewJWTService(secret string, expiry time.Duration) JWTService {
	return &hmacService{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

func (s *hmacService) Expiry() time.Duration {
	return s.expiry
}

func (s *hmacService) GenerateAccessToken(subject Subject) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID: subject.UserID,
		Email:  subject.Email,
		Name:   subject.Name,
		Role:   subject.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

func (s *hmacService) ValidateToken(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
