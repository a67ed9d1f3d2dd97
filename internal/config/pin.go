package config

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPIN = errors.New("PIN must be exactly 4 digits")

// PINChecker verifies the staff PIN. The gate only keeps patients away from
// nurse controls; it is not an access-control boundary.
type PINChecker struct {
	hash []byte
}

// NewPINChecker prefers a bcrypt hash and otherwise hashes the plain PIN.
func NewPINChecker(plain, hash string) (*PINChecker, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("STAFF_PIN_HASH: %w", err)
		}
		return &PINChecker{hash: []byte(hash)}, nil
	}
	if !ValidPIN(plain) {
		return nil, ErrInvalidPIN
	}
	generated, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &PINChecker{hash: generated}, nil
}

func (p *PINChecker) Check(pin string) bool {
	if !ValidPIN(pin) {
		return false
	}
	return bcrypt.CompareHashAndPassword(p.hash, []byte(pin)) == nil
}

// ValidPIN reports whether pin is four ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
