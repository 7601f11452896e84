// Package auth authenticates API callers with a single configured credential
// pair and bearer tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Defaults match the development credentials shipped in .evalforge.yaml.
const (
	DefaultUsername    = "admin"
	DefaultPassword    = "password"
	DefaultAccessToken = "fake-token"

	TokenTypeBearer = "bearer"
)

var (
	// ErrUnauthorized is returned for bad credentials and rejected tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)

// Token is issued by a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Verifier checks credentials and the tokens it issues.
type Verifier interface {
	Login(username, password string) (*Token, error)
	Verify(token string) error
}

// Credentials is the single accepted username/password pair.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) match(username, password string) bool {
	// Evaluate both comparisons so timing does not reveal which field was wrong.
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.Username))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(c.Password))
	return userOK&passOK == 1
}

// Static issues one fixed access token.
type Static struct {
	creds Credentials
	token string
}

// NewStatic creates a Static verifier. Empty fields fall back to the defaults.
func NewStatic(creds Credentials, token string) *Static {
	if creds.Username == "" {
		creds.Username = DefaultUsername
	}
	if creds.Password == "" {
		creds.Password = DefaultPassword
	}
	if token == "" {
		token = DefaultAccessToken
	}
	return &Static{creds: creds, token: token}
}

func (s *Static) Login(username, password string) (*Token, error) {
	if !s.creds.match(username, password) {
		return nil, ErrUnauthorized
	}
	return &Token{AccessToken: s.token, TokenType: TokenTypeBearer}, nil
}

func (s *Static) Verify(token string) error {
	if token == "" {
		return ErrMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

var (
	_ Verifier = (*Static)(nil)
	_ Verifier = (*JWT)(nil)
)
