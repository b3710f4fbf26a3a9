package mock

import (
	"context"
	"iter"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Emitter splits content into the chunks of a streaming response and paces
// them with Latency.
type Emitter struct {
	Latency Latency
	// Sleep waits between chunks; nil means SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Chunks yields content in pieces of size runes, or one rune at a time when
// size <= 0. Chunks are slices of content, so invalid UTF-8 bytes pass
// through unchanged. The delay for a chunk happens before it is yielded, and
// nothing past the last consumed chunk is computed. The sequence can be
// ranged over once; later ranges yield nothing.
func (e Emitter) Chunks(ctx context.Context, content string, size int) iter.Seq[string] {
	var used atomic.Bool
	return func(yield func(string) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		mode, step := ModeSized, size
		if size <= 0 {
			mode, step = ModeChar, 1
		}

		sleep := e.Sleep
		if sleep == nil {
			sleep = SleepContext
		}

		for start := 0; start < len(content); {
			end := start
			for n := 0; n < step && end < len(content); n++ {
				_, w := utf8.DecodeRuneInString(content[end:])
				end += w
			}
			chunk := content[start:end]
			start = end
			if e.Latency.Enabled {
				if err := sleep(ctx, e.Latency.Chunk(chunk, mode)); err != nil {
					return
				}
			} else if ctx.Err() != nil {
				return
			}
			if !yield(chunk) {
				return
			}
		}
	}
}
