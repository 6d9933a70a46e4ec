// Package auth verifies the single configured administrator credential.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any rejected login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Verifier checks a username/password pair.
type Verifier interface {
	Verify(ctx context.Context, username, password string) error
}

// StaticVerifier accepts exactly one username with either a bcrypt hash or a
// plain password. The hash wins when both are set. With neither configured
// every attempt fails.
type StaticVerifier struct {
	username string
	hash     []byte
	plain    []byte
}

// Config is the credential material for NewStaticVerifier.
type Config struct {
	Username     string
	Password     string
	PasswordHash string
}

// NewStaticVerifier validates the hash format up front.
func NewStaticVerifier(cfg Config) (*StaticVerifier, error) {
	v := &StaticVerifier{username: cfg.Username}
	switch {
	case cfg.PasswordHash != "":
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("admin password hash: %w", err)
		}
		v.hash = []byte(cfg.PasswordHash)
	case cfg.Password != "":
		v.plain = []byte(cfg.Password)
	}
	return v, nil
}

// Configured reports whether any credential is set.
func (v *StaticVerifier) Configured() bool {
	return v.username != "" && (len(v.hash) > 0 || len(v.plain) > 0)
}

// Verify compares in constant time (plain) or via bcrypt (hash).
func (v *StaticVerifier) Verify(_ context.Context, username, password string) error {
	if !v.Configured() {
		return ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	var passOK bool
	if len(v.hash) > 0 {
		passOK = bcrypt.CompareHashAndPassword(v.hash, []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), v.plain) == 1
	}
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash at the default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
