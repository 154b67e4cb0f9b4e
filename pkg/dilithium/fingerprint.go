package dilithium

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

const fingerprintSize = 8

// Fingerprint returns a short hex identifier for an encoded public key: the
// first 8 bytes of its SHA3-256 digest. It is meant for log lines and
// displays, not for authentication.
func Fingerprint(publicKey []byte) string {
	sum := sha3.Sum256(publicKey)
	return hex.EncodeToString(sum[:fingerprintSize])
}
