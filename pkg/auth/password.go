package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// HashIterations follows OWASP PBKDF2-SHA512 guidance
	HashIterations = 210000
	HashKeyLength  = 64
	SaltLength     = 16
	TokenLength    = 32
)

const (
	upperChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars = "abcdefghijklmnopqrstuvwxyz"
	digitChars = "0123456789"
	allChars   = upperChars + lowerChars + digitChars
)

// HashSecret derives a hex digest from (secret, salt) via PBKDF2-SHA512.
// Deterministic: identical inputs always produce identical output.
func HashSecret(secret, salt string) string {
	digest := pbkdf2.Key([]byte(secret), []byte(salt), HashIterations, HashKeyLength, sha512.New)
	return hex.EncodeToString(digest)
}

// VerifySecret recomputes the digest and compares in constant time
func VerifySecret(secret, salt, digest string) bool {
	computed := HashSecret(secret, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// GenerateSalt returns fresh random salt material, hex encoded.
// A new salt is generated on every password set or change, never reused.
func GenerateSalt() (string, error) {
	bytes := make([]byte, SaltLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateToken returns an opaque random session token, hex encoded.
// Long enough that guessing a live token is infeasible.
func GenerateToken() (string, error) {
	bytes := make([]byte, TokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateRandomPassword produces a password that satisfies the default
// complexity policy by construction: one character from each required class,
// the remainder drawn from the full alphabet, then shuffled.
func GenerateRandomPassword(length int) (string, error) {
	if length < 8 {
		length = 8
	}

	chars := make([]byte, 0, length)

	for _, class := range []string{upperChars, lowerChars, digitChars} {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	for len(chars) < length {
		c, err := randomChar(allChars)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates with crypto randomness so the class characters do not
	// sit at predictable positions
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(class string) (byte, error) {
	i, err := randomInt(len(class))
	if err != nil {
		return 0, err
	}
	return class[i], nil
}

func randomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(n.Int64()), nil
}
