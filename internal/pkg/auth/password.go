package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the hashing cost used when the configuration does
// not override it.
const DefaultBcryptCost = 12

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a plaintext password against a stored hash
func CheckPassword(hashedPassword, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	return err == nil
}
