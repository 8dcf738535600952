// Package auth verifies the application password and keeps the in-memory
// security event log.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier checks a supplied password against the configured secret.
// When a bcrypt hash is configured it wins over the plaintext secret.
//
// The plaintext path compares SHA-256 digests with a constant-time compare,
// so verification time does not depend on where the candidate diverges or on
// its length.
type PasswordVerifier struct {
	bcryptHash []byte
	digest     [32]byte
}

func NewPasswordVerifier(plaintext, bcryptHash string) *PasswordVerifier {
	v := &PasswordVerifier{}
	if bcryptHash != "" {
		v.bcryptHash = []byte(bcryptHash)
		return v
	}
	v.digest = sha256.Sum256([]byte(plaintext))
	return v
}

func (v *PasswordVerifier) Verify(candidate string) bool {
	if v.bcryptHash != nil {
		return bcrypt.CompareHashAndPassword(v.bcryptHash, []byte(candidate)) == nil
	}
	candidateDigest := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(candidateDigest[:], v.digest[:]) == 1
}

// FailureDelay returns a randomized 20-60ms pause applied before responding
// to a failed login, blunting timing analysis of the failure path.
func FailureDelay() time.Duration {
	var b [1]byte
	_, _ = rand.Read(b[:])
	return 20*time.Millisecond + time.Duration(b[0])%41*time.Millisecond
}
