// Package auth verifies bearer credentials and resolves them to a caller
// identity. Verification is pure: no I/O, no logging of token material.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/geo-index-service/internal/domain"
)

// Identity is the authenticated caller. The user id is opaque to this
// service; it is minted by the credential issuer and only ever compared.
type Identity struct {
	UserID string
}

// Verifier validates HS256-signed bearer tokens. Tokens must carry a
// subject and an expiry.
type Verifier struct {
	secret []byte
	clock  clockwork.Clock
}

// NewVerifier creates a Verifier. The clock is injectable so expiry checks
// are deterministic in tests.
func NewVerifier(secret string, clock clockwork.Clock) *Verifier {
	return &Verifier{secret: []byte(secret), clock: clock}
}

// Verify resolves a bearer token to an identity. An empty token yields
// Unauthenticated. Every other problem (malformed, expired, wrong
// signature, missing claims) yields the uniform InvalidCredential so the
// response never reveals which check failed.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, domain.NewFailure(domain.KindUnauthenticated, "no credential provided")
	}

	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, domain.NewFailure(domain.KindInvalidCredential, "invalid or expired credential")
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil || subject == "" {
		return Identity{}, domain.NewFailure(domain.KindInvalidCredential, "invalid or expired credential")
	}

	return Identity{UserID: subject}, nil
}

// Issue signs a token for the given subject. Used by the gentoken dev
// command and by tests; the serving path never mints credentials.
func Issue(secret, subject string, ttl time.Duration, clock clockwork.Clock) (string, error) {
	now := clock.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
