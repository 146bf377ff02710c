package core

import (
	"bufio"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/static-server/core/pools"
)

func TestBufferPoolStatsHitRate(t *testing.T) {
	s := bufferPoolStats(pools.BytePoolStats{Gets: 10, Puts: 9, Misses: 2})
	assert.InDelta(t, 0.8, s.HitRate, 1e-9)

	assert.Zero(t, bufferPoolStats(pools.BytePoolStats{}).HitRate)
}

func TestEngine_PoolStatsCountReadBuffers(t *testing.T) {
	ts := startServer(t, Options{DocumentRoot: writeDocRoot(t, map[string][]byte{"a.txt": []byte("a")})})

	for i := 0; i < 2; i++ {
		conn := ts.dial(t)
		sendRequest(t, conn, "/a.txt")
		status, _ := readResponse(t, bufio.NewReader(conn))
		require.Equal(t, 200, status)
		conn.Close()
	}

	require.Eventually(t, func() bool {
		s := ts.engine.GetPoolStats().ReadBuffers
		return s.Gets == 2 && s.Puts == 2
	}, 2*time.Second, 10*time.Millisecond)
	s := ts.engine.GetPoolStats().ReadBuffers
	assert.LessOrEqual(t, s.Misses, s.Gets)
}
