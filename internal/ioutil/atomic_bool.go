package ioutil

import "sync/atomic"

// AtomicBool is a boolean flag shared between a producer and a consumer
// goroutine without a lock.
type AtomicBool struct {
	flag int32
}

// Set stores v and reports whether the stored value changed.
func (b *AtomicBool) Set(v bool) bool {
	return atomic.SwapInt32(&b.flag, boolToInt32(v)) != boolToInt32(v)
}

// Get loads the current value.
func (b *AtomicBool) Get() bool {
	return atomic.LoadInt32(&b.flag) == 1
}

// CompareAndSwap stores v only if the current value is old.
func (b *AtomicBool) CompareAndSwap(old, v bool) bool {
	return atomic.CompareAndSwapInt32(&b.flag, boolToInt32(old), boolToInt32(v))
}

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
