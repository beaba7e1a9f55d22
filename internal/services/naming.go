// Package services holds small domain-adjacent helpers that do not justify a
// package of their own.
package services

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// wordlist is the BIP39 English wordlist (2048 words).
// Two words plus a number gives 2048 × 2048 × 100 = 419 million combinations,
// which is plenty for telling boxes apart on a home network.
var wordlist = wordlists.English

// NamingService generates human-readable device names used to identify a box
// when several run on the same network.
type NamingService struct {
	rng *rand.Rand
}

// NewNamingService creates a NamingService with its own random source.
func NewNamingService() *NamingService {
	return &NamingService{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DeviceName creates a random device name like "HappyTiger42".
func (s *NamingService) DeviceName() string {
	word1 := wordlist[s.rng.Intn(len(wordlist))]
	word2 := wordlist[s.rng.Intn(len(wordlist))]
	num := s.rng.Intn(100)
	return fmt.Sprintf("%s%s%d", capitalize(word1), capitalize(word2), num)
}

// capitalize returns the string with its first letter uppercased.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
