// Package userstore hashes and verifies the web UI's single admin
// credential. There is no user database: one username/password pair, loaded
// from config, held hashed in memory for the life of the process.
package userstore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// iterations matches the cost the original admin UI hashed its passwords
// with; changing it invalidates no stored hashes, since none are persisted
// across restarts, but keeping it fixed keeps hash() deterministic in tests.
const iterations = 100000

const keyLen = 32

// Store holds one admin credential, hashed.
type Store struct {
	username     string
	passwordHash string // "<salt-hex>$<hash-hex>"
}

// New hashes password with a fresh random salt and returns a Store
// verifying that username/password pair.
func New(username, password string) (*Store, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("userstore: generating salt: %v", err)
	}
	return &Store{
		username:     username,
		passwordHash: hash(password, salt),
	}, nil
}

func hash(password string, salt []byte) string {
	h := pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New)
	return fmt.Sprintf("%s$%s", hex.EncodeToString(salt), hex.EncodeToString(h))
}

// Verify reports whether username/password matches the stored credential,
// in constant time with respect to the password comparison.
func (s *Store) Verify(username, password string) bool {
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return false
	}

	parts := strings.SplitN(s.passwordHash, "$", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}

	computed := hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(s.passwordHash)) == 1
}

// Username returns the stored admin username.
func (s *Store) Username() string {
	return s.username
}
