// Package credential canonicalizes user passwords and derives every
// key and lookup hash from the canonical form. No other package may
// hash or compare a raw password.
package credential

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 100000
	keyLength     = 32
)

// unsetPhrase keys payloads embedded without a password. It provides
// no secrecy; it exists so the container format is uniform and GCM
// still authenticates the bytes.
const unsetPhrase = "cloak/no-password/v1"

// Secret is the canonical form of a user-supplied password. Both an
// absent password and the empty string normalize to the zero Secret,
// so embed and extract agree on the same key and directory hash no
// matter which representation the caller had.
type Secret struct {
	value string
}

// Normalize maps a raw password to its canonical Secret. The empty
// string is the "no password" sentinel.
func Normalize(raw string) Secret {
	return Secret{value: raw}
}

// NormalizeFrom handles callers that distinguish nil from "" (JSON
// bodies, optional flags). Both collapse to the zero Secret.
func NormalizeFrom(raw *string) Secret {
	if raw == nil {
		return Secret{}
	}
	return Normalize(*raw)
}

// IsSet reports whether a real password was supplied.
func (s Secret) IsSet() bool {
	return s.value != ""
}

// phrase is the string fed to the KDF and hashes.
func (s Secret) phrase() string {
	if !s.IsSet() {
		return unsetPhrase
	}
	return s.value
}

// Key derives the AES-256 key for the given salt.
func (s Secret) Key(salt []byte) []byte {
	return pbkdf2.Key([]byte(s.phrase()), salt, keyIterations, keyLength, sha256.New)
}

// Seed returns a deterministic int64 for traversal decisions. Zero
// when no password is set.
func (s Secret) Seed() int64 {
	if !s.IsSet() {
		return 0
	}
	sum := sha256.Sum256([]byte(s.value))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// DirectoryProps are the carrier properties that survive a lossy
// re-encode and therefore can key a frame directory: both the embed
// and the extract side can recompute them from the file they hold.
type DirectoryProps struct {
	Width      int
	Height     int
	FrameCount int
}

func (p DirectoryProps) canonical() string {
	return fmt.Sprintf("%dx%d/%d", p.Width, p.Height, p.FrameCount)
}

// DirectoryKey is the primary frame-directory lookup hash, bound to
// both the carrier properties and the normalized password.
func (s Secret) DirectoryKey(props DirectoryProps) string {
	sum := sha256.Sum256([]byte(props.canonical() + "|" + s.phrase()))
	return hex.EncodeToString(sum[:])
}

// PropertyKey is the property-only fallback hash, used when the
// primary key misses (for example a legacy embed that hashed an
// unnormalized password).
func PropertyKey(props DirectoryProps) string {
	sum := sha256.Sum256([]byte(props.canonical() + "|props-only"))
	return hex.EncodeToString(sum[:])
}

// Redacted returns a loggable stand-in for the secret.
func (s Secret) Redacted() string {
	if !s.IsSet() {
		return "<none>"
	}
	return strings.Repeat("*", 8)
}
