package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const TemporaryRefPrefix = "TMP-"

// GenerateOrderNumber returns a human-facing order number, e.g. NPC-20260101-101500-042-0193.
func GenerateOrderNumber(now time.Time) string {
	now = now.UTC()

	datePart := now.Format("20060102-150405")
	millis := now.Nanosecond() / int(time.Millisecond)

	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 10000)
	}

	return fmt.Sprintf("NPC-%s-%03d-%04d", datePart, millis, n.Int64())
}

// IsTemporaryRef reports whether ref is a placeholder handed out before an order number exists.
func IsTemporaryRef(ref string) bool {
	return ref == "" || strings.HasPrefix(ref, TemporaryRefPrefix)
}
