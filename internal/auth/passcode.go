package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const minPasscodeLength = 4

var (
	ErrPasscodeTooShort = errors.New("passcode must be at least 4 characters")
	ErrPasscodeMismatch = errors.New("passcode does not match")
)

// PasscodeService hashes the optional passcodes that guard joining a game
type PasscodeService struct {
	cost int
}

// NewPasscodeService returns a service hashing with the given bcrypt cost.
// A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewPasscodeService(cost int) *PasscodeService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasscodeService{cost: cost}
}

func (s *PasscodeService) Hash(passcode string) (string, error) {
	if len(passcode) < minPasscodeLength {
		return "", ErrPasscodeTooShort
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(passcode), s.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Compare checks passcode against hash. An empty hash means the game is open.
func (s *PasscodeService) Compare(hash, passcode string) error {
	if hash == "" {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(passcode)); err != nil {
		return ErrPasscodeMismatch
	}
	return nil
}
