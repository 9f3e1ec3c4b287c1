// Package password owns password hashing and verification. Callers supply
// plaintext and receive hashes; policy lives with the auth service.
package password

import "golang.org/x/crypto/bcrypt"

const cost = 8

// Hash returns a bcrypt hash of the password.
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether the password matches the stored hash.
func Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
