package devtoken

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/musicapi/pkg/params"
)

func testKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func parse(t *testing.T, signed string, key *ecdsa.PrivateKey, now time.Time) (*jwt.Token, *jwt.RegisteredClaims) {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)
	return token, claims
}

func TestSign(t *testing.T) {
	key, pemKey := testKey(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signed, err := Sign(pemKey, "TEAM123456", "KEY7890", now, 0)
	require.NoError(t, err)

	token, claims := parse(t, signed, key, now.Add(time.Minute))
	require.Equal(t, "KEY7890", token.Header["kid"])
	require.Equal(t, "ES256", token.Header["alg"])
	require.Equal(t, "TEAM123456", claims.Issuer)
	require.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
	require.Equal(t, now.Unix(), claims.IssuedAt.Unix())
}

func TestSignAcceptsEscapedNewlines(t *testing.T) {
	key, pemKey := testKey(t)
	escaped := "  " + strings.ReplaceAll(pemKey, "\n", `\n`) + "  "

	signed, err := Sign(escaped, "TEAM", "KID", time.Now(), time.Minute)
	require.NoError(t, err)
	parse(t, signed, key, time.Now())
}

func TestSignRejectsGarbageKey(t *testing.T) {
	_, err := Sign("not a key", "TEAM", "KID", time.Now(), 0)
	require.ErrorContains(t, err, "parse private key")
}

func TestGenerator(t *testing.T) {
	key, pemKey := testKey(t)
	store := params.NewMemoryStore(nil)
	store.SetSecret("apple/auth-key", pemKey)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(store)
	g.SetNow(func() time.Time { return now })

	signed, err := g.Generate(context.Background(), Config{SecretName: "apple/auth-key", TeamID: "TEAM", KeyID: "KID"})
	require.NoError(t, err)
	_, claims := parse(t, signed, key, now)
	require.Equal(t, "TEAM", claims.Issuer)

	_, err = g.Generate(context.Background(), Config{SecretName: "missing", TeamID: "TEAM", KeyID: "KID"})
	require.ErrorIs(t, err, params.ErrNotFound)

	_, err = g.Generate(context.Background(), Config{SecretName: "apple/auth-key"})
	require.EqualError(t, err, "devtoken: missing team id, key id")
}
