package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/services"
)

type contextKey string

const userContextKey contextKey = "user"

// UserStore resolves the subject of a session token.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*database.User, error)
}

type AuthMiddleware struct {
	authService *services.AuthService
	users       UserStore
}

func NewAuthMiddleware(authService *services.AuthService, users UserStore) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		users:       users,
	}
}

// websocketPath is the only route that takes the session from ?token=,
// since browsers can't set headers on a WebSocket upgrade.
const websocketPath = "/api/ws"

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter on websocketPath.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.URL.Path != websocketPath {
			return "", false
		}
		token := r.URL.Query().Get("token")
		return token, token != ""
	}
	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", false
	}
	return authParts[1], true
}

// Auth resolves the session to an active user and stores it in the request
// context.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
			return
		}

		claims, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user, err := m.users.GetUser(r.Context(), claims.UserID)
		if err != nil || !user.Active {
			writeError(w, http.StatusUnauthorized, "user not found or inactive")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole only lets users with the given role through. It must run after
// Auth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := currentUser(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}
			if user.Role != role {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func currentUser(r *http.Request) (*database.User, bool) {
	user, ok := r.Context().Value(userContextKey).(*database.User)
	return user, ok && user != nil
}
