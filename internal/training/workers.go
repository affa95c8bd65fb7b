package training

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const memoryPressurePercent = 85.0

// WorkerLimit sizes the fold worker pool. A positive configured value wins;
// otherwise the logical core count is used, halved under memory pressure.
func WorkerLimit(configured int) int {
	if configured > 0 {
		return configured
	}

	workers, err := cpu.Counts(true)
	if err != nil || workers < 1 {
		workers = runtime.NumCPU()
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.UsedPercent > memoryPressurePercent {
		workers /= 2
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}
