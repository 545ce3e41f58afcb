// Package auth holds the credential schemes the user store can apply.
package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Scheme names accepted by ParseScheme.
const (
	SchemePlaintext = "plaintext"
	SchemeBcrypt    = "bcrypt"
)

// PasswordScheme encodes passwords for storage and checks candidates
// against the stored form.
type PasswordScheme interface {
	Name() string
	Hash(password string) (string, error)
	Verify(password, stored string) bool
}

// ParseScheme maps a configured name to a scheme. Empty means plaintext.
func ParseScheme(name string) (PasswordScheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemePlaintext:
		return Plaintext{}, nil
	case SchemeBcrypt:
		return Bcrypt{Cost: bcrypt.DefaultCost}, nil
	default:
		return nil, fmt.Errorf("unknown password scheme %q", name)
	}
}

// Plaintext stores passwords as given and compares them exactly.
// It is insecure and only kept for compatibility with existing demo data.
type Plaintext struct{}

func (Plaintext) Name() string { return SchemePlaintext }

func (Plaintext) Hash(password string) (string, error) { return password, nil }

func (Plaintext) Verify(password, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

// Bcrypt stores bcrypt hashes.
type Bcrypt struct {
	Cost int
}

func (Bcrypt) Name() string { return SchemeBcrypt }

// Hash generates a bcrypt hash of the password.
func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify compares a bcrypt hashed password with its possible plaintext equivalent.
func (Bcrypt) Verify(password, stored string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
}
