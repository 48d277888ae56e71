// Package perf captures request-scoped resource usage. A snapshot is taken
// when request handling starts and again at response finalize; the delta
// lands on the audit entry.
package perf

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

var proc *process.Process

func init() {
	// Best effort: if the process handle cannot be created, CPU deltas
	// degrade to zero rather than failing entry creation.
	proc, _ = process.NewProcess(int32(os.Getpid()))
}

// Snapshot is a point-in-time resource reading.
type Snapshot struct {
	At        time.Time
	HeapAlloc uint64
	CPUUser   float64 // seconds
	CPUSystem float64 // seconds
}

// Take reads the current resource usage. It never fails; unavailable
// readings stay zero.
func Take() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := Snapshot{
		At:        time.Now(),
		HeapAlloc: ms.HeapAlloc,
	}
	if proc != nil {
		if times, err := proc.Times(); err == nil {
			snap.CPUUser = times.User
			snap.CPUSystem = times.System
		}
	}
	return snap
}

// Delta describes resource consumption between two snapshots. CPU readings
// are process-wide, so under concurrency they attribute shared work to each
// in-flight request; they are trend indicators, not exact costs.
type Delta struct {
	Elapsed          time.Duration
	MemoryDeltaBytes int64
	CPUUserMicros    int64
	CPUSystemMicros  int64
}

// Between computes the delta from start to end. The heap delta can be
// negative when a GC ran in between.
func Between(start, end Snapshot) Delta {
	return Delta{
		Elapsed:          end.At.Sub(start.At),
		MemoryDeltaBytes: int64(end.HeapAlloc) - int64(start.HeapAlloc),
		CPUUserMicros:    int64((end.CPUUser - start.CPUUser) * 1e6),
		CPUSystemMicros:  int64((end.CPUSystem - start.CPUSystem) * 1e6),
	}
}
