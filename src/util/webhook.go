package util

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v41/plaid"
)

// Follows https://plaid.com/docs/api/webhooks/webhook-verification/

const webhookMaxAge = 5 * time.Minute

// VerificationKeyFetcher loads the JWK Plaid used to sign a webhook.
type VerificationKeyFetcher interface {
	FetchVerificationKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error)
}

// WebhookVerifier checks the Plaid-Verification header of incoming webhooks.
// Keys are cached by kid.
type WebhookVerifier struct {
	fetcher VerificationKeyFetcher
	now     func() time.Time

	mu   sync.RWMutex
	keys map[string]*ecdsa.PublicKey
}

func NewWebhookVerifier(fetcher VerificationKeyFetcher) *WebhookVerifier {
	return &WebhookVerifier{
		fetcher: fetcher,
		now:     time.Now,
		keys:    make(map[string]*ecdsa.PublicKey),
	}
}

func jwkToECDSAPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.X == "" || jwk.Y == "" ||
		jwk.Kty != "EC" ||
		jwk.Crv != "P-256" {
		return nil, errors.New("invalid/unsupported JWK")
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("decode y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// Verify returns nil when body was signed by Plaid within the last five minutes.
func (v *WebhookVerifier) Verify(ctx context.Context, body []byte, headers http.Header) error {
	tokenString := headers.Get("Plaid-Verification")
	if tokenString == "" {
		return errors.New("missing Plaid-Verification header")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithTimeFunc(v.now),
	)

	// Decode JWT header (unverified) to extract alg and kid
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("parse unverified token: %w", err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("unexpected alg %q (want ES256)", unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return errors.New("missing kid in JWT header")
	}

	pubKey, err := v.key(ctx, kid)
	if err != nil {
		return err
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return pubKey, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid token: %w", err)
	}

	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return errors.New("missing iat")
	}
	if v.now().Sub(iat.Time) > webhookMaxAge {
		return errors.New("token too old (>5m)")
	}

	wantHash, ok := claims["request_body_sha256"].(string)
	if !ok || wantHash == "" {
		return errors.New("missing request_body_sha256")
	}
	sum := sha256.Sum256(body)
	gotHex := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(gotHex), []byte(strings.ToLower(wantHash))) != 1 {
		return errors.New("body hash mismatch")
	}

	return nil
}

func (v *WebhookVerifier) key(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	v.mu.RUnlock()
	if ok {
		return key, nil
	}

	jwk, err := v.fetcher.FetchVerificationKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("get JWK: %w", err)
	}
	key, err = jwkToECDSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("jwk->ecdsa: %w", err)
	}
	if jwk.Kid == kid {
		v.mu.Lock()
		v.keys[kid] = key
		v.mu.Unlock()
	}
	return key, nil
}
