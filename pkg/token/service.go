// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-webauthn-rp.
//
// go-webauthn-rp is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package token builds, signs, encrypts and validates the bearer tokens that
// carry ceremony payloads between the relying party and its clients. Tokens
// are JWS signed with a lifecycle key and optionally nested inside a JWE
// envelope addressed to an encryption key.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-webauthn-rp/pkg/adapters/logger"
	"github.com/jeremyhahn/go-webauthn-rp/pkg/keys"
)

// Named claims carrying ceremony payloads.
const (
	// ClaimPublicKey holds serialized registration ceremony options.
	ClaimPublicKey = "publicKey"

	// ClaimAssertionRequest holds a serialized assertion request.
	ClaimAssertionRequest = "assertionRequest"
)

// DefaultLifetime is how long an issued token remains valid.
const DefaultLifetime = 300 * time.Second

// Service issues and validates bearer tokens.
type Service struct {
	issuer   string
	audience string
	lifetime time.Duration
	log      logger.Logger
	now      func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) {
		s.issuer = issuer
	}
}

// WithAudience sets the aud claim on issued tokens.
func WithAudience(audience string) ServiceOption {
	return func(s *Service) {
		s.audience = audience
	}
}

// WithLifetime overrides the default token lifetime.
func WithLifetime(lifetime time.Duration) ServiceOption {
	return func(s *Service) {
		s.lifetime = lifetime
	}
}

// WithLogger sets the service logger.
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

// WithClock overrides the service's time source. Intended for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a token service.
func NewService(opts ...ServiceOption) *Service {
	s := &Service{
		issuer:   "go-webauthn-rp",
		lifetime: DefaultLifetime,
		log:      logger.NewNoopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSignedToken signs a token with the given key. The header carries the
// key id; the claims set carries subject, issuer, audience, a random jti,
// issue/not-before/expiry times and the caller's named claims.
func (s *Service) CreateSignedToken(record *keys.Record, subject string, extra map[string]interface{}) (string, error) {
	suite, err := SuiteFor(record)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": s.issuer,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(s.lifetime).Unix(),
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}
	for name, value := range extra {
		claims[name] = value
	}

	tok := jwt.NewWithClaims(suite.Signing, claims)
	tok.Header["kid"] = record.Kid

	signed, err := tok.SignedString(record.Key.Key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	s.log.Debug("token signed",
		logger.String("kid", record.Kid),
		logger.String("sub", subject))
	return signed, nil
}

// Encrypt wraps a signed token as the payload of a JWE envelope addressed
// to the given encryption key. The envelope header carries the key id and
// cty "JWT" to mark the nested token.
func (s *Service) Encrypt(record *keys.Record, signedToken string) (string, error) {
	if signedToken == "" {
		return "", ErrEmptyToken
	}
	suite, err := SuiteFor(record)
	if err != nil {
		return "", err
	}

	encrypter, err := jose.NewEncrypter(
		suite.ContentEncryption,
		jose.Recipient{
			Algorithm: suite.KeyManagement,
			Key:       record.Key.Public().Key,
			KeyID:     record.Kid,
		},
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("token: encrypter: %w", err)
	}

	envelope, err := encrypter.Encrypt([]byte(signedToken))
	if err != nil {
		return "", fmt.Errorf("token: encrypt: %w", err)
	}
	return envelope.CompactSerialize()
}

// Decrypt opens a JWE envelope with the given key and returns the inner
// signed token. Fails with ErrKeyIDMismatch when the envelope names a
// different key id, preventing key confusion.
func (s *Service) Decrypt(record *keys.Record, envelope string) (string, error) {
	if envelope == "" {
		return "", ErrEmptyToken
	}

	parsed, err := jose.ParseEncrypted(envelope, keyManagementAlgorithms, contentEncryptions)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	if parsed.Header.KeyID != record.Kid {
		return "", ErrKeyIDMismatch
	}

	plaintext, err := parsed.Decrypt(record.Key.Key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUndecryptable, err)
	}
	return string(plaintext), nil
}

// Validate verifies a signed token against the given key and returns its
// claims. It fails with ErrKeyIDMismatch when the token header names a
// different key id, ErrExpired when the expiry claim is in the past and
// ErrBadSignature when the signature does not verify.
func (s *Service) Validate(record *keys.Record, signedToken string) (jwt.MapClaims, error) {
	if signedToken == "" {
		return nil, ErrEmptyToken
	}
	suite, err := SuiteFor(record)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(signedToken, claims,
		func(t *jwt.Token) (interface{}, error) {
			kid, _ := t.Header["kid"].(string)
			if kid != record.Kid {
				return nil, ErrKeyIDMismatch
			}
			return record.Key.Public().Key, nil
		},
		jwt.WithValidMethods([]string{suite.Signing.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyIDMismatch):
		return nil, ErrKeyIDMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !parsed.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

// HasClaim reports whether a claims set carries the named claim with the
// given value. Scalar string claims match by equality; list claims match by
// membership.
func HasClaim(claims jwt.MapClaims, name, value string) bool {
	raw, ok := claims[name]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case string:
		return v == value
	case []string:
		for _, item := range v {
			if item == value {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == value {
				return true
			}
		}
	}
	return false
}
