package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

const claimsKey contextKey = "auth_claims"

// ClaimsFromContext extracts JWT claims from request context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)
	return claims
}

// ActorName returns the display name of the authenticated actor, or
// empty when the request is unauthenticated.
func ActorName(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Name
	}
	return ""
}

// AuthenticateAdmin returns middleware that requires an admin token.
func AuthenticateAdmin(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := extractAndValidate(r, jwtMgr, RealmAdmin)
			if err != nil {
				http.Error(w, `{"code":"UNAUTHORIZED","message":"`+err.Error()+`"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}

// AuthenticateOptional returns middleware that attaches claims when a
// valid token is present but lets unauthenticated requests through.
// Payment creation uses this: the payer does not need an account.
func AuthenticateOptional(jwtMgr *JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, err := extractAndValidate(r, jwtMgr, RealmUser); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractAndValidate(r *http.Request, jwtMgr *JWTManager, realm Realm) (*Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, fmt.Errorf("invalid Authorization format")
	}

	claims, err := jwtMgr.ValidateToken(parts[1])
	if err != nil {
		return nil, err
	}
	if realm == RealmAdmin && claims.Realm != RealmAdmin {
		return nil, fmt.Errorf("admin token required")
	}
	return claims, nil
}
