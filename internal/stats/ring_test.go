package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferAppendAndEvict(t *testing.T) {
	rb := NewRingBuffer[int](3)

	rb.Append(1)
	rb.Append(2)
	assert.Equal(t, 2, rb.Len())
	assert.Equal(t, []int{1, 2}, rb.Snapshot())

	rb.Append(3)
	rb.Append(4) // evicts 1
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, 3, rb.Cap())
	assert.Equal(t, []int{2, 3, 4}, rb.Snapshot())

	rb.Append(5)
	rb.Append(6)
	assert.Equal(t, []int{4, 5, 6}, rb.Snapshot())
}

func TestRingBufferCapacityClamp(t *testing.T) {
	rb := NewRingBuffer[string](0)
	assert.Equal(t, 1, rb.Cap())

	rb.Append("a")
	rb.Append("b")
	assert.Equal(t, []string{"b"}, rb.Snapshot())
}

func TestRingBufferRecent(t *testing.T) {
	rb := NewRingBuffer[int](5)
	for i := 1; i <= 5; i++ {
		rb.Append(i)
	}

	assert.Equal(t, []int{4, 5}, rb.Recent(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rb.Recent(10))
	assert.Empty(t, rb.Recent(0))
	assert.Empty(t, rb.Recent(-3))
}

func TestRingBufferSince(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rb := NewTimedRingBuffer(10, func(ts time.Time) time.Time { return ts })

	for i := 0; i < 5; i++ {
		rb.Append(base.Add(time.Duration(i) * time.Minute))
	}

	got := rb.Since(base.Add(3 * time.Minute))
	require.Len(t, got, 2)
	assert.Equal(t, base.Add(3*time.Minute), got[0])
	assert.Equal(t, base.Add(4*time.Minute), got[1])

	assert.Len(t, rb.Since(base), 5)
	assert.Empty(t, rb.Since(base.Add(time.Hour)))
}

func TestRingBufferSinceWithoutTimestamps(t *testing.T) {
	rb := NewRingBuffer[int](4)
	rb.Append(1)

	got := rb.Since(time.Now())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRingBufferSnapshotIsCopy(t *testing.T) {
	rb := NewRingBuffer[int](3)
	rb.Append(1)
	rb.Append(2)

	snap := rb.Snapshot()
	snap[0] = 99
	assert.Equal(t, []int{1, 2}, rb.Snapshot())
}
