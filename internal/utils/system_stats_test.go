package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	workers, active, capacity int
}

func (p *fakePool) WorkerCount() int    { return p.workers }
func (p *fakePool) ActiveJobCount() int { return p.active }
func (p *fakePool) QueueCapacity() int  { return p.capacity }

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 Bytes"},
		{512, "512 Bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{2 * 1024 * 1024, "2.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatBytes(tc.bytes))
	}
}

func TestGetSystemStats(t *testing.T) {
	stats := GetSystemStats(&fakePool{workers: 3, active: 1, capacity: 100})
	require.NotNil(t, stats)

	assert.Greater(t, stats.NumCPU, 0)
	assert.Greater(t, stats.GoRoutines, 0)
	assert.NotZero(t, stats.MemoryAlloc)
	assert.Equal(t, FormatBytes(stats.MemoryAlloc), stats.MemoryAllocHuman)
	assert.Equal(t, FormatBytes(stats.MemorySys), stats.MemorySysHuman)
	assert.False(t, stats.Timestamp.IsZero())

	assert.Equal(t, 3, stats.WorkerCount)
	assert.Equal(t, 1, stats.ActiveJobs)
	assert.Equal(t, 100, stats.QueueCapacity)
}

func TestGetSystemStatsNilPool(t *testing.T) {
	stats := GetSystemStats(nil)
	require.NotNil(t, stats)
	assert.Zero(t, stats.WorkerCount)
}
