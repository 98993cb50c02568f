package matchmaking

import (
	"fmt"

	"github.com/park285/Cheese-PvP-server/internal/protocol"
)

// Fingerprint groups requests with equivalent pacing: "<category>_<time>_<increment>".
type Fingerprint string

const (
	defaultCategory                = "Any"
	DefaultFingerprint Fingerprint = "Any_0_0"
)

// FingerprintOf derives the queue key. A descriptor without both time and
// increment maps to DefaultFingerprint.
func FingerprintOf(tc *protocol.TimeControl) Fingerprint {
	if tc == nil || tc.Time == nil || tc.Increment == nil {
		return DefaultFingerprint
	}
	cat := tc.CategoryLabel()
	if cat == "" {
		cat = defaultCategory
	}
	return Fingerprint(fmt.Sprintf("%s_%d_%d", cat, *tc.Time, *tc.Increment))
}
