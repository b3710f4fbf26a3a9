package config

import "github.com/yungtweek/mockllm/internal/logger"

// ApplyLagPreset overrides the callback-mode latency knobs with a named
// profile. Unknown or empty presets leave the env values alone.
func ApplyLagPreset(cfg *Config) {
	if cfg.LagPreset == "" {
		return
	}
	logger.Log.Infow("[config] apply lag preset", "preset", cfg.LagPreset)
	switch cfg.LagPreset {
	case "off":
		cfg.LagEnabled = false

	case "fast":
		// ~1000 chars/sec, chunky providers with a warm cache
		cfg.LagEnabled = true
		cfg.LagFactor = 100

	case "realistic":
		// ~100 chars/sec, close to hosted chat models
		cfg.LagEnabled = true
		cfg.LagFactor = 10

	case "slow":
		// ~20 chars/sec, useful for exercising client timeouts
		cfg.LagEnabled = true
		cfg.LagFactor = 2

	default:
		logger.Log.Warnw("[config] unknown lag preset ignored", "preset", cfg.LagPreset)
	}
}
