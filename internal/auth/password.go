package auth

import (
	"crypto/rand"

	"golang.org/x/crypto/bcrypt"
)

// Alphabet for generated passwords and verification codes. Excludes
// lookalike characters (l/I/1, o/O/0, b/8, s/5) since players retype
// codes from email.
const alphabet = "acdefghjkmnpqrtuvwxyzACDEFGHJKMNPQRTUVWXYZ234679"

const (
	passwordLength = 12
	codeLength     = 4
)

// GeneratePassword returns a fresh 12-character client password.
func GeneratePassword() string {
	return randomString(passwordLength)
}

// GenerateCode returns a 4-character one-time verification code.
func GenerateCode() string {
	return randomString(codeLength)
}

// randomString draws n characters from the alphabet with crypto/rand.
// Bytes past the largest whole multiple of the alphabet size are
// rejected to keep the distribution uniform.
func randomString(n int) string {
	limit := byte(256 - 256%len(alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, 1)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("auth: reading crypto/rand: " + err.Error())
		}
		if buf[0] >= limit {
			continue
		}
		out = append(out, alphabet[int(buf[0])%len(alphabet)])
	}
	return string(out)
}

// HashPassword bcrypt-hashes a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies plaintext against a stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
