package bhcore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

var idCounter uint64

// NewID returns a unique id suitable for a requestId, a creatorId, or a
// streamId. It combines a monotonic process-local counter with a short
// random suffix so ids are unique even across process restarts sharing a
// channel namespace.
func NewID(prefix string) string {
	n := atomic.AddUint64(&idCounter, 1)
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s_%d_%s", prefix, n, hex.EncodeToString(buf[:]))
}
