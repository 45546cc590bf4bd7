package devbackend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	LoginID string `json:"login_id"`
	Role    string `json:"role"`
	Type    string `json:"type"`
	CSRF    string `json:"csrf"`
	jwt.RegisteredClaims
}

// newToken signs a token of the given type. The CSRF companion value is
// embedded so the double-submit check needs no server state.
func newToken(secret string, now time.Time, ttl time.Duration, loginID, role, tokenType string) (string, *Claims, error) {
	claims := &Claims{
		LoginID: loginID,
		Role:    role,
		Type:    tokenType,
		CSRF:    uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   loginID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func parseToken(secret string, now func() time.Time, tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != tokenType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
