package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any bearer token the pull API cannot
// accept: malformed, expired, wrong signing method, or carrying claims
// outside the closed role set.
var ErrInvalidToken = errors.New("auth: invalid bearer token")

// Claims are the claims a pull-API bearer token carries: the calling
// system's tenant and its role on the settlement read/confirm endpoints.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// ParseJWT validates an HS256 bearer token against the shared secret and
// returns its claims. Expiry is required and checked by the parser; the
// tenant must be set and the role must normalize to a known Role.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" || len(secret) == 0 {
		return nil, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant_id claim", ErrInvalidToken)
	}
	if _, ok := NormalizeRole(claims.Role); !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
