package proc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSleepInterval_CompletesFullDuration(t *testing.T) {
	start := time.Now()
	ok := sleepInterval(context.Background(), 3*tickChunk+time.Millisecond)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 3*tickChunk)
}

func TestSleepInterval_ReturnsEarlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := sleepInterval(ctx, time.Second)
	assert.False(t, ok, "an already-canceled context must not be slept through")
}

func TestSleepInterval_CancelsMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(tickChunk / 2)
		cancel()
	}()
	start := time.Now()
	ok := sleepInterval(ctx, 10*tickChunk)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 10*tickChunk, "cancellation must cut the sleep short")
}
