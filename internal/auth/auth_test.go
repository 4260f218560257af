package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestSeatTokenRoundTrip(t *testing.T) {
	s := NewSeatService("secret", time.Hour)
	token, err := s.GenerateSeatToken("session", "player", "black")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := s.ValidateSeatToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.SessionID != "session" || claims.PlayerID != "player" || claims.Color != "black" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestSeatTokenRejected(t *testing.T) {
	s := NewSeatService("secret", time.Hour)

	other, _ := NewSeatService("other-secret", time.Hour).GenerateSeatToken("session", "player", "white")
	if _, err := s.ValidateSeatToken(other); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature: got %v", err)
	}

	expired, _ := NewSeatService("secret", -time.Minute).GenerateSeatToken("session", "player", "white")
	if _, err := s.ValidateSeatToken(expired); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired token: got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, SeatClaims{SessionID: "session", PlayerID: "player"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := s.ValidateSeatToken(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unsigned token: got %v", err)
	}

	empty, _ := s.GenerateSeatToken("", "player", "white")
	if _, err := s.ValidateSeatToken(empty); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token without session: got %v", err)
	}
}

func TestValidateSeatFor(t *testing.T) {
	s := NewSeatService("secret", time.Hour)
	token, _ := s.GenerateSeatToken("g1", "player", "white")

	if claims, err := s.ValidateSeatFor(token, "g1"); err != nil || claims.PlayerID != "player" {
		t.Fatalf("own session: %+v, %v", claims, err)
	}
	if _, err := s.ValidateSeatFor(token, "g2"); !errors.Is(err, ErrWrongSession) {
		t.Errorf("other session: got %v", err)
	}
	if _, err := s.ValidateSeatFor("", "g1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty token: got %v", err)
	}
}

func TestPasscode(t *testing.T) {
	s := NewPasscodeService(bcrypt.MinCost)

	if _, err := s.Hash("abc"); !errors.Is(err, ErrPasscodeTooShort) {
		t.Fatalf("short passcode: got %v", err)
	}
	hash, err := s.Hash("open sesame")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Compare(hash, "open sesame"); err != nil {
		t.Fatalf("matching passcode rejected: %v", err)
	}
	if err := s.Compare(hash, "open barley"); !errors.Is(err, ErrPasscodeMismatch) {
		t.Fatalf("wrong passcode: got %v", err)
	}
	if err := s.Compare("", "anything"); err != nil {
		t.Fatalf("open game rejected passcode: %v", err)
	}
}

func TestPasscodeCostFallback(t *testing.T) {
	if got := NewPasscodeService(0).cost; got != bcrypt.DefaultCost {
		t.Fatalf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}
