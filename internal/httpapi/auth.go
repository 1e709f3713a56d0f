package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const RoleAdmin = "admin"

type contextKey string

const identityKey contextKey = "identity"

// Identity is what a bearer token asserts about the caller. Tokens are
// issued elsewhere; this service only verifies them.
type Identity struct {
	UserID string
	Role   string
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Authenticator verifies bearer tokens and puts the caller identity into
// the request context.
type Authenticator struct {
	secret []byte
	logger *logrus.Logger
}

func NewAuthenticator(secret string, logger *logrus.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), logger: logger}
}

func (a *Authenticator) verify(r *http.Request) (Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, fmt.Errorf("missing authorization header")
	}

	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return Identity{}, fmt.Errorf("malformed authorization header")
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(fields[1], claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if claims.UserID == "" {
		return Identity{}, fmt.Errorf("token missing user_id claim")
	}
	return Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

// RequireAuth rejects requests without a valid bearer token.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.verify(r)
		if err != nil {
			a.logger.WithError(err).Info("Rejected unauthenticated request")
			respondWithError(w, http.StatusUnauthorized, "Invalid or missing token")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin additionally demands the admin role.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return a.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if identity.Role != RoleAdmin {
			a.logger.WithFields(logrus.Fields{
				"user_id": identity.UserID,
				"role":    identity.Role,
			}).Warn("Rejected non-admin request to admin endpoint")
			respondWithError(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
