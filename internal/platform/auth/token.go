package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard sub, iat and exp fields only.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenIssuer signs and parses HS256 bearer tokens with a shared secret.
type TokenIssuer struct {
	secret  []byte
	timeout time.Duration
	now     func() time.Time
}

func NewTokenIssuer(secret []byte, timeout time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, timeout: timeout, now: time.Now}
}

// Issue returns a signed token for subject that expires after the configured
// timeout.
func (ti *TokenIssuer) Issue(subject string) (string, error) {
	if len(ti.secret) == 0 {
		return "", errors.New("token secret is not configured")
	}
	issuedAt := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ti.timeout)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry of tokenStr and returns its claims.
func (ti *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	if len(ti.secret) == 0 {
		return nil, errors.New("token secret is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
