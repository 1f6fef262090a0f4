package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/gallery-api/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Hour, "gallery-api")
	customer := &models.Customer{ID: "c-1", Email: "ada@example.com", Role: models.RoleAdmin}

	token, expiresAt, err := issuer.Issue(customer)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	id, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "c-1", id.CustomerID)
	assert.Equal(t, "ada@example.com", id.Email)
	assert.True(t, id.IsAdmin())
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("s3cret", time.Minute, "gallery-api")
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := issuer.Issue(&models.Customer{ID: "c-1", Role: models.RoleCustomer})
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsForeignSecret(t *testing.T) {
	token, _, err := NewTokenIssuer("other", time.Hour, "gallery-api").Issue(&models.Customer{ID: "c-1"})
	require.NoError(t, err)

	_, err = NewTokenIssuer("s3cret", time.Hour, "gallery-api").Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "c-1", Issuer: "gallery-api"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenIssuer("s3cret", time.Hour, "gallery-api").Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "battery staple"), ErrPasswordMismatch)
}

func TestIdentityContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))

	ctx := WithIdentity(context.Background(), &Identity{CustomerID: "c-1", Role: models.RoleCustomer})
	id := FromContext(ctx)
	require.NotNil(t, id)
	assert.False(t, id.IsAdmin())

	var anonymous *Identity
	assert.False(t, anonymous.IsAdmin())
}
