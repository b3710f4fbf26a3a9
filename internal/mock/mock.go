package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

var rngMu sync.Mutex

// RandFloat64 returns a value in [0, 1) from the process RNG. It is the
// default jitter source for character streaming.
func RandFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// SleepContext waits for d or until ctx is done, whichever comes first, and
// reports the context error in the latter case.
func SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
