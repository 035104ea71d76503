package core

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued bearer token stays valid. There is
// no revocation store; guards compensate by reloading the principal on
// every request.
const DefaultTokenTTL = 5 * 24 * time.Hour

// TokenClaims is the signed payload of a bearer token.
type TokenClaims struct {
	PrincipalID string        `json:"pid"`
	Kind        PrincipalKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies bearer tokens. Each principal kind has its
// own HS256 secret; verification against the wrong kind fails closed.
type TokenCodec struct {
	secrets map[PrincipalKind][]byte
	ttl     time.Duration
}

// NewTokenCodec builds a codec from the two kind secrets. Callers are
// expected to have validated the secrets already (Config.Validate).
func NewTokenCodec(memberSecret, moderatorSecret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		secrets: map[PrincipalKind][]byte{
			KindMember:    memberSecret,
			KindModerator: moderatorSecret,
		},
		ttl: ttl,
	}
}

// Issue signs a token for the given principal id and kind, valid from now
// for the codec TTL.
func (tc *TokenCodec) Issue(principalID string, kind PrincipalKind, now time.Time) (string, error) {
	secret, ok := tc.secrets[kind]
	if !ok {
		return "", ErrInvalidToken
	}
	claims := TokenClaims{
		PrincipalID: principalID,
		Kind:        kind,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature and expiry against the given kind's secret and
// returns the claims. Any failure mode (garbled token, bad signature,
// expiry, alg substitution, or a payload whose kind does not match the key
// that verified it) yields the same ErrInvalidToken; a token is never
// reinterpreted as the other kind.
func (tc *TokenCodec) Verify(tokenStr string, kind PrincipalKind) (*TokenClaims, error) {
	secret, ok := tc.secrets[kind]
	if !ok {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenStr, &TokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.PrincipalID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
