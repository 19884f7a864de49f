// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zapdesk/zapdesk/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// AccountIDKey is the context key for the authenticated account id.
	AccountIDKey ContextKey = "account_id"
	// AttendantIDKey is the context key for the attendant bound to the account.
	AttendantIDKey ContextKey = "attendant_id"
	// LevelKey is the context key for the account level.
	LevelKey ContextKey = "level"
)

// Claims represents the desk JWT claims.
type Claims struct {
	jwt.RegisteredClaims
	AccountID   uint               `json:"account_id"`
	AttendantID uint               `json:"attendant_id"`
	Level       model.AccountLevel `json:"level"`
}

// Auth creates JWT authentication middleware.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				unauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), AccountIDKey, claims.AccountID)
			ctx = context.WithValue(ctx, AttendantIDKey, claims.AttendantID)
			ctx = context.WithValue(ctx, LevelKey, claims.Level)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}

// GetAccountID gets the authenticated account id from context.
func GetAccountID(ctx context.Context) uint {
	if v := ctx.Value(AccountIDKey); v != nil {
		return v.(uint)
	}
	return 0
}

// GetAttendantID gets the authenticated attendant id from context.
func GetAttendantID(ctx context.Context) uint {
	if v := ctx.Value(AttendantIDKey); v != nil {
		return v.(uint)
	}
	return 0
}

// GetLevel gets the account level from context.
func GetLevel(ctx context.Context) model.AccountLevel {
	if v := ctx.Value(LevelKey); v != nil {
		return v.(model.AccountLevel)
	}
	return ""
}

// RequireAdmin creates middleware that restricts a route to admin accounts.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetLevel(r.Context()) != model.LevelAdmin {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				w.Write([]byte(`{"success":false,"error":"insufficient permissions"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
