package wait

import "sync/atomic"

func loadAcquire(ptr *uint32) uint32 {
	return atomic.LoadUint32(ptr)
}
