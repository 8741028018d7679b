package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"sodaledger/backend/internal/domain"
)

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrValidation)
		}
		return "", err
	}
	return string(bytes), nil
}

// verifyPassword reports whether input matches stored. needsUpgrade is set
// when stored is a legacy unsalted SHA-256 digest that should be rehashed.
func verifyPassword(stored string, input string) (ok bool, needsUpgrade bool) {
	if stored == "" || input == "" {
		return false, false
	}
	if isPasswordHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil, false
	}
	if isLegacyDigest(stored) {
		sum := sha256.Sum256([]byte(input))
		digest := hex.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(stored))) == 1, true
	}
	return false, false
}

// burnPasswordCheck spends roughly the time of a real bcrypt comparison so a
// missing account is not distinguishable by latency.
func burnPasswordCheck(input string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("sodaledger-missing-account"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input))
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

func isLegacyDigest(value string) bool {
	if len(value) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(value)
	return err == nil
}
