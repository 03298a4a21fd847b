package stress

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceUsage contains process resource usage at the end of a run.
type ResourceUsage struct {
	CPUPercent     float64 `json:"cpu_percent"`
	RSSBytes       uint64  `json:"rss_bytes"`
	HeapBytes      uint64  `json:"heap_bytes"`
	GoroutineCount int     `json:"goroutines"`
	ThreadCount    int32   `json:"threads"`
}

// resourceMonitor samples this process's resource usage relative to when it
// was created.
type resourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
}

func newResourceMonitor() *resourceMonitor {
	rm := &resourceMonitor{startTime: time.Now()}

	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return rm
	}
	rm.process = proc
	if cpuTime, err := proc.Times(); err == nil {
		rm.startCPUTime = cpuTime.Total()
	}
	return rm
}

// usage returns what could be sampled; fields the platform cannot report
// stay zero.
func (rm *resourceMonitor) usage() ResourceUsage {
	var usage ResourceUsage

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	usage.HeapBytes = memStats.HeapAlloc
	usage.GoroutineCount = runtime.NumGoroutine()

	if rm.process == nil {
		return usage
	}

	if cpuTime, err := rm.process.Times(); err == nil {
		if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
			usage.CPUPercent = ((cpuTime.Total() - rm.startCPUTime) / elapsed) * 100
		}
	}
	if memInfo, err := rm.process.MemoryInfo(); err == nil {
		usage.RSSBytes = memInfo.RSS
	}
	usage.ThreadCount, _ = rm.process.NumThreads()

	return usage
}
