package core

import "github.com/searchktools/static-server/core/pools"

// PoolStats represents statistics for the buffer pools the server draws from
type PoolStats struct {
	ReadBuffers BufferPoolStats `json:"read_buffers"`
	CopyBuffers BufferPoolStats `json:"copy_buffers"`
}

type BufferPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

func bufferPoolStats(s pools.BytePoolStats) BufferPoolStats {
	out := BufferPoolStats{Gets: s.Gets, Puts: s.Puts, Misses: s.Misses}
	if s.Gets > 0 && s.Misses <= s.Gets {
		out.HitRate = float64(s.Gets-s.Misses) / float64(s.Gets)
	}
	return out
}

// GetPoolStats returns statistics for the per-connection read buffers and
// the shared buffers used when a file cannot be sent zero-copy
func (e *Engine) GetPoolStats() PoolStats {
	return PoolStats{
		ReadBuffers: bufferPoolStats(e.bytePool.Stats()),
		CopyBuffers: bufferPoolStats(pools.GlobalStats()),
	}
}
