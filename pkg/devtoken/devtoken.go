// Package devtoken signs Apple Music developer tokens.
package devtoken

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/theory-cloud/musicapi/pkg/params"
)

// DefaultTTL is the lifetime of a signed token.
const DefaultTTL = time.Hour

// Config names the Apple credentials used for signing.
type Config struct {
	SecretName string
	TeamID     string
	KeyID      string
	TTL        time.Duration
}

func (c Config) validate() error {
	var missing []string
	if strings.TrimSpace(c.SecretName) == "" {
		missing = append(missing, "secret name")
	}
	if strings.TrimSpace(c.TeamID) == "" {
		missing = append(missing, "team id")
	}
	if strings.TrimSpace(c.KeyID) == "" {
		missing = append(missing, "key id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("devtoken: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Generator loads the signing key from a secret store on every call.
type Generator struct {
	secrets params.SecretReader
	now     func() time.Time
}

func NewGenerator(secrets params.SecretReader) *Generator {
	return &Generator{secrets: secrets, now: time.Now}
}

// SetNow replaces the time source used for iat and exp.
func (g *Generator) SetNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// Generate fetches the private key named by cfg.SecretName and signs a token.
func (g *Generator) Generate(ctx context.Context, cfg Config) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}
	raw, err := g.secrets.GetSecret(ctx, cfg.SecretName)
	if err != nil {
		return "", fmt.Errorf("devtoken: retrieve secret %s: %w", cfg.SecretName, err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", errors.New("devtoken: failed to retrieve Apple private key")
	}
	return Sign(raw, cfg.TeamID, cfg.KeyID, g.now(), cfg.TTL)
}

// NormalizeKey turns escaped `\n` sequences back into newlines and trims the PEM block.
func NormalizeKey(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, `\n`, "\n"))
}

// Sign issues an ES256 token with the key id header, the team id as issuer and the given
// lifetime (DefaultTTL when zero).
func Sign(pemKey, teamID, keyID string, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(NormalizeKey(pemKey)))
	if err != nil {
		return "", fmt.Errorf("devtoken: parse private key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
		Issuer:    teamID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	token.Header["kid"] = keyID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("devtoken: sign: %w", err)
	}
	return signed, nil
}
