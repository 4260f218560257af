package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrWrongSession = errors.New("token does not belong to this game")
)

// SeatService issues and checks the tokens that bind a client to one seat
// (a player id and color) in one game session.
type SeatService struct {
	secret []byte
	ttl    time.Duration
}

type SeatClaims struct {
	SessionID string `json:"sessionId"`
	PlayerID  string `json:"playerId"`
	Color     string `json:"color"`
	jwt.RegisteredClaims
}

func NewSeatService(secret string, ttl time.Duration) *SeatService {
	return &SeatService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// GenerateSeatToken creates a signed token for a player's seat
func (s *SeatService) GenerateSeatToken(sessionID, playerID, color string) (string, error) {
	now := time.Now()
	claims := SeatClaims{
		SessionID: sessionID,
		PlayerID:  playerID,
		Color:     color,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateSeatToken validates and parses a seat token
func (s *SeatService) ValidateSeatToken(tokenString string) (*SeatClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SeatClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SeatClaims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateSeatFor validates a seat token and checks it was issued for sessionID
func (s *SeatService) ValidateSeatFor(tokenString, sessionID string) (*SeatClaims, error) {
	claims, err := s.ValidateSeatToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID {
		return nil, ErrWrongSession
	}
	return claims, nil
}

func (s *SeatService) TTL() time.Duration {
	return s.ttl
}
