// Package auth verifies the bearer tokens presented to the control API.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes understood by the control API.
const (
	ScopeEpisodesRead    = "episodes:read"
	ScopeEpisodesWrite   = "episodes:write"
	ScopeMonitoringWrite = "monitoring:write"
)

var (
	// ErrMissingToken means no bearer credential was presented.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken wraps every signature, expiry and claim failure.
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Config holds the HMAC key and the expected issuer. An empty issuer is not checked.
type Config struct {
	Secret string
	Issuer string
}

// Principal is the caller identified by a verified token.
type Principal struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// Can reports whether the principal was granted scope.
func (p Principal) Can(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

// scopeList accepts both a JSON array and an OAuth style space separated string.
type scopeList []string

func (s *scopeList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = slices.DeleteFunc(list, func(v string) bool { return v == "" })
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("scopes: %w", err)
	}
	*s = strings.Fields(joined)
	return nil
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Scopes scopeList `json:"scopes"`
}

// Verifier checks HS256 tokens against a Config.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier builds a Verifier. Tokens must be HS256 signed and carry an expiry.
func NewVerifier(cfg Config) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{key: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify validates raw and returns the principal it names.
func (v *Verifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	var claims tokenClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return Principal{
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
