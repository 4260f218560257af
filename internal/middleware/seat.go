package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"chess-moves/internal/auth"
)

type contextKey string

const (
	SeatContextKey contextKey = "seat"
)

type SeatAuth struct {
	seats *auth.SeatService
}

func NewSeatAuth(seats *auth.SeatService) *SeatAuth {
	return &SeatAuth{seats: seats}
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return token, ok && token != ""
}

// SeatErrorStatus maps a seat validation error to an HTTP status
func SeatErrorStatus(err error) int {
	if errors.Is(err, auth.ErrWrongSession) {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// RequireSeat validates the bearer seat token and checks that it was issued
// for the session named in the route. Returns 401 if the token is missing or
// invalid and 403 if it belongs to another game.
func (m *SeatAuth) RequireSeat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString, ok := BearerToken(r)
		if !ok {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := m.seats.ValidateSeatFor(tokenString, mux.Vars(r)["sessionId"])
		if err != nil {
			http.Error(w, err.Error(), SeatErrorStatus(err))
			return
		}

		ctx := context.WithValue(r.Context(), SeatContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSeatFromContext retrieves the authenticated seat from the request context
func GetSeatFromContext(ctx context.Context) (*auth.SeatClaims, bool) {
	seat, ok := ctx.Value(SeatContextKey).(*auth.SeatClaims)
	return seat, ok
}
