package governor

import "runtime"

// Compile-time interface satisfaction check.
var _ HeapSource = RuntimeHeapSource{}

// RuntimeHeapSource reads heap usage from the Go runtime. This is the heap
// source a real worker runs against; tests substitute a scripted fake.
type RuntimeHeapSource struct{}

// CurrentHeapUsed returns the bytes of allocated heap objects.
func (RuntimeHeapSource) CurrentHeapUsed() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}
