// Package syncserver implements the server half of the sync protocol: an
// owner-scoped Postgres store plus the /sync/{entityType} HTTP contract.
package syncserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Owner is the authenticated user a sync request acts for.
type Owner struct {
	ID          string
	SyncEnabled bool
}

// Authenticator resolves the owner behind an HTTP request. Implementations
// must fail closed: no owner means no sync.
type Authenticator interface {
	GetOwner(r *http.Request) (Owner, error)
}

// JWTAuth authenticates requests with HS256 bearer tokens.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth creates a JWT authenticator.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

// Claims carries the owner id in the standard sub claim plus the owner's
// cloud-sync opt-in.
type Claims struct {
	SyncEnabled bool `json:"sync_enabled"`
	jwt.RegisteredClaims
}

// GenerateToken mints a token for an owner. Used by the dev tooling and
// tests; production deployments mint tokens in their auth service.
func (j *JWTAuth) GenerateToken(ownerID string, syncEnabled bool, expiration time.Duration) (string, error) {
	claims := &Claims{
		SyncEnabled: syncEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "dashchat",
			Subject:   ownerID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates a token and returns its claims.
func (j *JWTAuth) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub (owner ID) in token")
	}
	return claims, nil
}

// GetOwner implements Authenticator from the Authorization header.
func (j *JWTAuth) GetOwner(r *http.Request) (Owner, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return Owner{}, fmt.Errorf("missing Authorization header")
	}
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return Owner{}, fmt.Errorf("Authorization header must use Bearer scheme")
	}

	claims, err := j.ValidateToken(tokenString)
	if err != nil {
		return Owner{}, fmt.Errorf("failed to validate token: %w", err)
	}
	return Owner{ID: claims.Subject, SyncEnabled: claims.SyncEnabled}, nil
}
