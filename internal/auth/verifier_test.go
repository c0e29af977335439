package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geo-index-service/internal/domain"
)

const testSecret = "test-secret-do-not-use"

func assertKind(t *testing.T, err error, kind domain.FailureKind) {
	t.Helper()
	var f *domain.Failure
	require.True(t, errors.As(err, &f), "expected *domain.Failure, got %v", err)
	assert.Equal(t, kind, f.Kind)
}

func TestVerify_ValidToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	token, err := Issue(testSecret, "user-42", time.Hour, clock)
	require.NoError(t, err)

	v := NewVerifier(testSecret, clock)
	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", identity.UserID)
}

func TestVerify_MissingToken(t *testing.T) {
	v := NewVerifier(testSecret, clockwork.NewFakeClock())
	_, err := v.Verify("")
	assertKind(t, err, domain.KindUnauthenticated)
}

func TestVerify_ExpiredToken(t *testing.T) {
	clock := clockwork.NewFakeClock()
	token, err := Issue(testSecret, "user-42", time.Minute, clock)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	v := NewVerifier(testSecret, clock)
	_, err = v.Verify(token)
	assertKind(t, err, domain.KindInvalidCredential)
}

func TestVerify_WrongSignature(t *testing.T) {
	clock := clockwork.NewFakeClock()
	token, err := Issue("other-secret", "user-42", time.Hour, clock)
	require.NoError(t, err)

	v := NewVerifier(testSecret, clock)
	_, err = v.Verify(token)
	assertKind(t, err, domain.KindInvalidCredential)
}

func TestVerify_MalformedToken(t *testing.T) {
	v := NewVerifier(testSecret, clockwork.NewFakeClock())
	_, err := v.Verify("not-a-jwt")
	assertKind(t, err, domain.KindInvalidCredential)
}

func TestVerify_TokenWithoutExpiry(t *testing.T) {
	claims := jwt.MapClaims{"sub": "user-42"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	v := NewVerifier(testSecret, clockwork.NewFakeClock())
	_, err = v.Verify(token)
	assertKind(t, err, domain.KindInvalidCredential)
}

func TestVerify_TokenWithoutSubject(t *testing.T) {
	clock := clockwork.NewFakeClock()
	claims := jwt.MapClaims{"exp": jwt.NewNumericDate(clock.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	v := NewVerifier(testSecret, clock)
	_, err = v.Verify(token)
	assertKind(t, err, domain.KindInvalidCredential)
}

// Expired-vs-malformed must be indistinguishable to the caller.
func TestVerify_UniformFailureDetail(t *testing.T) {
	clock := clockwork.NewFakeClock()
	expired, err := Issue(testSecret, "user-42", time.Minute, clock)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	v := NewVerifier(testSecret, clock)

	_, errExpired := v.Verify(expired)
	_, errMalformed := v.Verify("garbage")

	assert.Equal(t, errExpired.Error(), errMalformed.Error())
}
