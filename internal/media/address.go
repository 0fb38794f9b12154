// internal/media/address.go
package media

import (
	"crypto/md5" //nolint:gosec // naming only, not integrity
	"encoding/hex"
)

// DigestLength is the number of hex characters kept from the digest.
const DigestLength = 10

// Address derives the content-addressed file stem for data.
func Address(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])[:DigestLength]
}
