package dilithium

import "strings"

// Text converts s to the bytes that get signed for a text message: its UTF-8
// encoding, with each run of invalid bytes replaced by a single U+FFFD.
func Text(s string) []byte {
	return []byte(strings.ToValidUTF8(s, "�"))
}
