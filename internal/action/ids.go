package action

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomToken returns n random upper-case base36 characters.
func RandomToken(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(base36[rand.IntN(len(base36))])
	}
	return b.String()
}

// NewID returns a globally unique action id.
func NewID() string {
	return uuid.NewString()
}

// StampedID formats "<prefix>-<epoch-ms>-<random>" identifiers such as
// freeze and release ids.
func StampedID(prefix string, now time.Time, randomLen int) string {
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), RandomToken(randomLen))
}

// NewFreezeID returns FREEZE-<epoch-ms>-<9 chars>.
func NewFreezeID(now time.Time) string {
	return StampedID("FREEZE", now, 9)
}

// NewReleaseID returns RELEASE-<epoch-ms>-<9 chars>.
func NewReleaseID(now time.Time) string {
	return StampedID("RELEASE", now, 9)
}

// NewReferenceID returns TRX-TREASURY-YYYYMMDD-NNNN with NNNN in [1000, 9999].
// The suffix is not checked against existing records, so two actions created
// on the same day may share a reference id.
func NewReferenceID(now time.Time) string {
	return fmt.Sprintf("TRX-TREASURY-%s-%d", now.Format("20060102"), 1000+rand.IntN(9000))
}
