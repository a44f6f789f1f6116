package fulfillment

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
)

// newPackID builds a pack id from the pack type plus a random base36
// suffix. The pack table's primary key is the uniqueness backstop; the
// suffix space just makes collisions unlikely enough that retries are rare.
func newPackID(packTypeID string) (string, error) {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	suffix := strings.ToUpper(base36encode(bytes))
	return fmt.Sprintf("%s-%s", packTypeID, suffix), nil
}

func base36encode(bytes []byte) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	padded := make([]byte, 8)
	copy(padded[8-len(bytes):], bytes)
	number := binary.BigEndian.Uint64(padded)

	if number == 0 {
		return "0"
	}

	result := ""
	for number > 0 {
		result = string(alphabet[number%36]) + result
		number /= 36
	}
	return result
}
