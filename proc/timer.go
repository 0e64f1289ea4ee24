package proc

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

// tickChunk bounds how long a single Nanosleep call blocks before the tick
// driver re-checks ctx, the same chunking poller.go's own epoll timeout
// loop uses to stay responsive to shutdown rather than sleeping the full
// interval in one uninterruptible syscall.
const tickChunk = 5 * time.Millisecond

// sleepInterval blocks for d, paced by repeated unix.Nanosleep calls no
// longer than tickChunk each, returning early (with ok=false) if ctx is
// canceled partway through. unix.Nanosleep is used instead of time.Sleep
// to give the simulated timer interrupt a syscall-level clock source, the
// way the teacher's own platform pollers (poller_linux.go, poller_darwin.go)
// reach for golang.org/x/sys/unix rather than a pure-stdlib timer.
func sleepInterval(ctx context.Context, d time.Duration) (ok bool) {
	for remaining := d; remaining > 0; {
		if ctx.Err() != nil {
			return false
		}
		chunk := remaining
		if chunk > tickChunk {
			chunk = tickChunk
		}
		ts := unix.NsecToTimespec(chunk.Nanoseconds())
		for {
			if err := unix.Nanosleep(&ts, &ts); err == nil || err != unix.EINTR {
				break
			}
			if ctx.Err() != nil {
				return false
			}
		}
		remaining -= chunk
	}
	return ctx.Err() == nil
}
