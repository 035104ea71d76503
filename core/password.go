package core

import "golang.org/x/crypto/bcrypt"

// HashPassword derives a one-way salted hash from a plaintext password.
// bcrypt generates a fresh salt per call.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches hash. bcrypt compares in
// constant time with respect to the derived key bytes.
func CheckPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// dummyPasswordHash is compared against when a login email does not exist,
// so a lookup miss costs the same as a wrong password. Hash of an
// unguessable random string, generated once.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
