package governor

import "github.com/colinxiong/MURS/internal/model"

// ManagedPool reports worker-wide managed memory usage (execution plus
// storage). Queried fresh each tick.
type ManagedPool interface {
	ExecutionUsed() int64
	StorageUsed() int64
	StorageCapacity() int64
}

// HeapSource reports current on-heap usage in bytes. Queried fresh each tick.
type HeapSource interface {
	CurrentHeapUsed() int64
}

// Sampler is the external per-task metrics collaborator. Tasks push running
// totals and sampled results through it; the governor reads back usage, usage
// rate, and completion percent, plus the live ordered task list.
type Sampler interface {
	// TaskIDs returns the ordered list of tasks the sampler currently tracks.
	TaskIDs() []model.TaskID

	MemoryUsage(id model.TaskID) (int64, bool)
	UsageRate(id model.TaskID) (float64, bool)
	CompletionPercent(id model.TaskID) (float64, bool)

	RecordInputRead(id model.TaskID, bytes, records int64)
	RecordShuffleRead(id model.TaskID, bytes, records int64)
	RecordCacheRead(id model.TaskID, bytes, records int64)
	MarkShuffleWrite(id model.TaskID)
	RecordSampledShuffleMemory(id model.TaskID, bytes int64)
	RecordSampledCacheMemory(id model.TaskID, bytes int64)
}
