package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultJWTExpiry is used when no expiry is configured.
const DefaultJWTExpiry = time.Hour

// ErrNoSecret is returned by NewJWT when the signing secret is empty.
var ErrNoSecret = errors.New("jwt secret is required")

// JWT issues HS256 tokens for the configured credential pair.
type JWT struct {
	creds  Credentials
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewJWT creates a JWT verifier. A non-positive expiry uses DefaultJWTExpiry.
func NewJWT(creds Credentials, secret string, expiry time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if creds.Username == "" {
		creds.Username = DefaultUsername
	}
	if creds.Password == "" {
		creds.Password = DefaultPassword
	}
	if expiry <= 0 {
		expiry = DefaultJWTExpiry
	}
	return &JWT{creds: creds, secret: []byte(secret), expiry: expiry, now: time.Now}, nil
}

func (j *JWT) Login(username, password string) (*Token, error) {
	if !j.creds.match(username, password) {
		return nil, ErrUnauthorized
	}

	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: TokenTypeBearer}, nil
}

func (j *JWT) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !parsed.Valid || claims.Subject != j.creds.Username {
		return ErrUnauthorized
	}
	return nil
}
