// Package auth verifies bearer tokens minted by the external identity service
// and carries the resulting identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/matchchat/internal/errs"
	"github.com/and161185/matchchat/internal/model"
)

// DefaultLeeway tolerates clock skew between issuer and verifier.
const DefaultLeeway = 30 * time.Second

// Identity is the authenticated caller.
type Identity struct {
	UserID uuid.UUID
	Tier   model.Tier
}

// Claims are the JWT claims understood by the service: the subject is the user
// id and tier names the subscription tier.
type Claims struct {
	jwt.RegisteredClaims
	Tier string `json:"tier,omitempty"`
}

// Verifier checks HS256 tokens.
type Verifier struct {
	key    []byte
	leeway time.Duration
}

// NewVerifier constructs Verifier.
func NewVerifier(key []byte, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{key: key, leeway: leeway}
}

// Verify parses token and returns the identity it carries. A missing tier claim
// means the free tier.
func (v *Verifier) Verify(token string) (Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.key, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthenticated)
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil || id == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: bad subject", errs.ErrUnauthenticated)
	}
	tier := model.TierFree
	if claims.Tier != "" {
		if tier, err = model.ParseTier(claims.Tier); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
		}
	}
	return Identity{UserID: id, Tier: tier}, nil
}

// Issuer signs HS256 tokens. The service itself never issues tokens; the CLI
// and tests use Issuer to stand in for the identity service.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer constructs Issuer.
func NewIssuer(key []byte, ttl time.Duration) *Issuer {
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// Issue creates a signed token for id.
func (i *Issuer) Issue(id Identity) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Tier: id.Tier.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	return signed, exp, err
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(h http.Header) (string, error) {
	for _, v := range h.Values("Authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no bearer token", errs.ErrUnauthenticated)
}
