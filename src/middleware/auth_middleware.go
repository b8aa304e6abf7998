package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"dualauth-server/src/models"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	emailKey  contextKey = "email"
)

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, userID int64, email string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, emailKey, email)
}

// UserID returns the authenticated user's id.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

func Email(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ParseTokenFromRequest extracts and validates the bearer token, returning its claims.
func ParseTokenFromRequest(r *http.Request, secret []byte) (jwt.MapClaims, error) {
	tokenString := r.Header.Get("Authorization")
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}

	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// userIDFromClaims accepts user_id as a JSON number or a decimal string.
func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	switch v := claims["user_id"].(type) {
	case float64:
		if v <= 0 || v != float64(int64(v)) {
			return 0, fmt.Errorf("invalid user_id")
		}
		return int64(v), nil
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid user_id")
		}
		return id, nil
	default:
		return 0, fmt.Errorf("missing user_id")
	}
}

// JWTAuthMiddleware verifies HS256 session tokens issued by the identity
// provider and puts the user on the request context.
func JWTAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ParseTokenFromRequest(r, key)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			userID, err := userIDFromClaims(claims)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			email, _ := claims["email"].(string)

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, email)))
		})
	}
}

// UserProvisioner records a session user locally.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID int64, email string) (*models.User, error)
}

// SessionMemo remembers which session users were provisioned recently.
type SessionMemo interface {
	Seen(key string) bool
	Remember(key string)
}

// ProvisionUserMiddleware records each authenticated user so they can own
// accounts and be named as approvers. With a nil memo every request upserts.
func ProvisionUserMiddleware(p UserProvisioner, memo SessionMemo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				unauthorized(w, "missing user")
				return
			}
			email := Email(r.Context())
			key := fmt.Sprintf("%d:%s", userID, email)
			if memo == nil || !memo.Seen(key) {
				if _, err := p.EnsureUser(r.Context(), userID, email); err != nil {
					slog.Error("Failed to provision user", "user_id", userID, "error", err)
					unauthorized(w, "unable to resolve session user")
					return
				}
				if memo != nil {
					memo.Remember(key)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
