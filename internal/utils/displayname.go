package utils

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"
)

// Word lists for generating random display names
var adjectives = []string{
	"Swift", "Brave", "Clever", "Noble", "Mighty", "Silent", "Golden", "Silver",
	"Crystal", "Shadow", "Crimson", "Azure", "Cosmic", "Ancient", "Mystic", "Royal",
	"Fierce", "Gentle", "Wild", "Calm", "Bold", "Wise", "Quick", "Keen",
	"Dark", "Light", "Storm", "Frost", "Fire", "Iron", "Steel", "Stone",
	"Thunder", "Winter", "Summer", "Spring", "Autumn", "Night", "Dawn", "Dusk",
	"Lunar", "Solar", "Stellar", "Void", "Phantom", "Ghost", "Spirit", "Soul",
	"Eternal", "Infinite", "Primal", "Elder", "Young", "Grand", "Prime", "Alpha",
	"Omega", "Delta", "Sigma", "Zeta", "Beta", "Gamma", "Apex", "Echo",
}

var nouns = []string{
	"Knight", "Bishop", "Rook", "Queen", "King", "Pawn", "Dragon", "Phoenix",
	"Wolf", "Bear", "Eagle", "Hawk", "Lion", "Tiger", "Falcon", "Serpent",
	"Wizard", "Mage", "Sage", "Oracle", "Scholar", "Hunter", "Warrior", "Champion",
	"Castle", "Tower", "Crown", "Throne", "Sword", "Shield", "Arrow", "Bow",
	"Storm", "Thunder", "Lightning", "Blaze", "Frost", "Shadow", "Light", "Star",
	"Moon", "Sun", "Comet", "Nova", "Nebula", "Galaxy", "Cosmos", "Void",
	"Guardian", "Sentinel", "Watcher", "Keeper", "Seeker", "Rider", "Walker", "Runner",
	"Master", "Lord", "Baron", "Duke", "Prince", "Count", "Marshal", "Captain",
}

const maxDisplayNameLength = 32

var ErrDisplayNameTooLong = errors.New("display name must be at most 32 characters")

// GenerateRandomDisplayName generates a random display name in format "AdjectiveNoun123"
func GenerateRandomDisplayName() string {
	adjective := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	number := rand.Intn(1000) // 0-999
	return fmt.Sprintf("%s%s%d", adjective, noun, number)
}

// NormalizeDisplayName trims name and substitutes a random name when it is
// empty. Names are only shown to the opponent, so they need not be unique.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GenerateRandomDisplayName(), nil
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
