package auth

import (
	"fmt"
	"time"

	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "orderdesk"

// Claims is the payload of a session token.
type Claims struct {
	UserID  int64 `json:"uid"`
	IsAdmin bool  `json:"adm"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 session tokens so a caller can keep
// the authenticated actor between interactions.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. A zero ttl means 24 hours.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is how long issued tokens stay valid.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue returns a signed token for actor.
func (i *TokenIssuer) Issue(actor models.Actor) (string, error) {
	if !actor.Authenticated() {
		return "", e.ErrUnauthenticated
	}
	now := i.now()
	claims := Claims{
		UserID:  actor.UserID,
		IsAdmin: actor.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   actor.Username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse checks the token signature and expiry and returns the actor it
// carries. Any failure wraps ErrUnauthenticated.
func (i *TokenIssuer) Parse(tokenString string) (models.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: invalid token: %w", e.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("%w: invalid token claims", e.ErrUnauthenticated)
	}

	return models.Actor{
		UserID:   claims.UserID,
		Username: claims.Subject,
		IsAdmin:  claims.IsAdmin,
	}, nil
}
