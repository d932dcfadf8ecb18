package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)

	pair, err := issuer.IssuePair(42)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, pair.Refresh)
	assert.True(t, pair.RefreshExpires.After(pair.AccessExpires))

	access, err := issuer.Parse(pair.Access, KindAccess)
	require.NoError(t, err)
	uid, err := access.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint(42), uid)
	assert.NotEmpty(t, access.ID)

	refresh, err := issuer.Parse(pair.Refresh, KindRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, access.ID, refresh.ID)
}

func TestTokenIssuer_RejectsWrongKind(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	pair, err := issuer.IssuePair(1)
	require.NoError(t, err)

	_, err = issuer.Parse(pair.Refresh, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = issuer.Parse(pair.Access, KindRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	base := time.Now()
	issuer.now = func() time.Time { return base }
	token, _, err := issuer.Issue(KindAccess, 1)
	require.NoError(t, err)

	issuer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = issuer.Parse(token, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	other := NewTokenIssuer("other-secret", time.Minute, time.Hour)
	token, _, err := other.Issue(KindAccess, 1)
	require.NoError(t, err)

	_, err = issuer.Parse(token, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("", KindAccess)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = issuer.Parse("not-a-jwt", KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenIssuer_RejectsNoneAlgorithm(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Kind: KindAccess,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.Parse(token, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
