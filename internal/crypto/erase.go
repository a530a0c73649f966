package crypto

import (
	"runtime"
	"sync/atomic"
)

// eraseSink keeps the clearing loop observable so the compiler cannot drop it.
var eraseSink atomic.Uint64

// SecureErase overwrites b with zeros. Remnants may still exist in caches or
// swap; this only covers the slice itself.
func SecureErase(b []byte) {
	var sum uint64
	for i := range b {
		b[i] = 0
		sum += uint64(b[i])
	}
	eraseSink.Add(sum)
	runtime.KeepAlive(b)
}
