package security

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Scheme identifies which hashing scheme a stored credential uses.
type Scheme string

const (
	// SchemeUnknown covers empty and malformed stored values.
	SchemeUnknown Scheme = "unknown"
	// SchemeLegacy is the unsalted SHA-1 hex digest retained only for
	// credentials set before the argon2id migration.
	SchemeLegacy Scheme = "sha1"
	// SchemeArgon2id is the modern salted scheme.
	SchemeArgon2id Scheme = "argon2id"
)

const legacyDigestLength = sha1.Size * 2

// ErrMalformedHash reports a stored value that is neither a recognizable
// argon2id encoding nor a legal legacy digest. Callers log it and treat the
// credential as a non-match; it never fails the enclosing request.
var ErrMalformedHash = errors.New("security: malformed stored hash")

// VerifyCredential checks the candidate plaintext against the stored hash and
// reports which scheme matched so the caller can migrate legacy hashes on a
// successful login. An empty stored value never matches: the principal has
// simply not completed password setup yet.
func VerifyCredential(stored, candidate string) (bool, Scheme, error) {
	if stored == "" {
		return false, SchemeUnknown, nil
	}

	if strings.HasPrefix(stored, Argon2Prefix) {
		ok, err := verifyArgon2(candidate, stored)
		if err != nil {
			return false, SchemeUnknown, ErrMalformedHash
		}
		return ok, SchemeArgon2id, nil
	}

	if !isLegacyDigest(stored) {
		return false, SchemeUnknown, ErrMalformedHash
	}

	computed := LegacyHash(candidate)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(stored))) == 1 {
		return true, SchemeLegacy, nil
	}
	return false, SchemeLegacy, nil
}

// LegacyHash computes the legacy unsalted SHA-1 hex digest. Exists only so
// tests and migration tooling can fabricate pre-migration hashes.
func LegacyHash(candidate string) string {
	sum := sha1.Sum([]byte(candidate))
	return hex.EncodeToString(sum[:])
}

func isLegacyDigest(stored string) bool {
	if len(stored) != legacyDigestLength {
		return false
	}
	if _, err := hex.DecodeString(stored); err != nil {
		return false
	}
	return true
}
