package mock

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/yungtweek/mockllm/internal/config"
)

// ChunkMode selects the per-chunk delay rule.
type ChunkMode int

const (
	// ModeSized delays in proportion to the chunk length.
	ModeSized ChunkMode = iota
	// ModeChar delays a jittered constant per character.
	ModeChar
)

// Latency computes artificial delays. A delay is length / (Factor * 10)
// seconds, so larger factors are faster.
type Latency struct {
	Enabled bool
	Factor  float64
	// Jitter returns values in [0, 1). nil means RandFloat64.
	Jitter func() float64
}

func NewLatency(s config.Settings) Latency {
	return Latency{Enabled: s.LagEnabled, Factor: s.LagFactor}
}

func (l Latency) perChar() float64 {
	if !l.Enabled || l.Factor <= 0 {
		return 0
	}
	return 1 / (l.Factor * 10)
}

// WholeResponse is the delay before a non-streaming response is sent.
func (l Latency) WholeResponse(content string) time.Duration {
	return seconds(float64(utf8.RuneCountInString(content)) * l.perChar())
}

// Chunk is the delay before chunk becomes visible to the client.
func (l Latency) Chunk(chunk string, mode ChunkMode) time.Duration {
	base := l.perChar()
	if base == 0 {
		return 0
	}
	if mode == ModeSized {
		return seconds(float64(utf8.RuneCountInString(chunk)) * base)
	}

	jitter := l.Jitter
	if jitter == nil {
		jitter = RandFloat64
	}
	d := base + (jitter()-0.5)*base
	if d < 0 {
		d = 0
	}
	return seconds(d)
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
