package pools

import (
	"math"
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters. Zero fields leave the runtime's
// current setting alone.
type GCConfig struct {
	// GOGC sets the garbage collection target percentage
	GOGC int

	// MemoryLimit sets the soft memory limit in bytes
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns the settings it replaced, so a
// caller can restore them.
func ApplyGCConfig(cfg GCConfig) GCConfig {
	prev := GCConfig{
		GOGC:        currentGCPercent(),
		MemoryLimit: debug.SetMemoryLimit(-1),
	}

	if cfg.GOGC > 0 {
		prev.GOGC = debug.SetGCPercent(cfg.GOGC)
	}
	if cfg.MemoryLimit > 0 {
		prev.MemoryLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	if prev.MemoryLimit == math.MaxInt64 {
		prev.MemoryLimit = 0
	}
	return prev
}

func currentGCPercent() int {
	p := debug.SetGCPercent(100)
	debug.SetGCPercent(p)
	return p
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	HeapAlloc    uint64
	TotalAlloc   uint64
	Sys          uint64
	NumGoroutine int
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		TotalAlloc:   ms.TotalAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return stats
}
