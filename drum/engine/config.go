package engine

import (
	"os"
	"strconv"
	"time"
)

// Config holds the engine settings.
type Config struct {
	SampleRate int
	BlockSize  int
	// Lookahead is the scheduling window in seconds.
	Lookahead    float64
	PollInterval time.Duration
	// MasterVolume is the linear Destination gain, 0 to 1.
	MasterVolume  float64
	OutputEnabled bool
	// OutputBuffer is the device buffer handed to the speaker.
	OutputBuffer    time.Duration
	LoadConcurrency int
	LoadTimeout     time.Duration
	// CleanupMargin is added to each voice length before its effect chain
	// is torn down, in seconds.
	CleanupMargin float64
	// ReverbReturn is the wet level of the shared reverb, 0 to 1.
	ReverbReturn float64
	// SampleDir resolves relative sample paths.
	SampleDir string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		SampleRate:      44100,
		BlockSize:       128,
		Lookahead:       0.1,
		PollInterval:    25 * time.Millisecond,
		MasterVolume:    0.8,
		OutputEnabled:   true,
		OutputBuffer:    100 * time.Millisecond,
		LoadConcurrency: 4,
		LoadTimeout:     30 * time.Second,
		CleanupMargin:   0.1,
		ReverbReturn:    0.35,
	}
}

// LoadConfig overlays DRUMENGINE_* environment variables on the defaults.
// Unparsable values are ignored.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	if enabled := os.Getenv("DRUMENGINE_OUTPUT_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			cfg.OutputEnabled = val
		}
	}

	// Master volume is given as 0-100.
	if volume := os.Getenv("DRUMENGINE_MASTER_VOLUME"); volume != "" {
		if val, err := strconv.Atoi(volume); err == nil {
			cfg.MasterVolume = min(max(float64(val)/100.0, 0), 1)
		}
	}

	if sampleRate := os.Getenv("DRUMENGINE_SAMPLE_RATE"); sampleRate != "" {
		if val, err := strconv.Atoi(sampleRate); err == nil && val > 0 {
			cfg.SampleRate = val
		}
	}

	if block := os.Getenv("DRUMENGINE_BLOCK_SIZE"); block != "" {
		if val, err := strconv.Atoi(block); err == nil && val > 0 {
			cfg.BlockSize = val
		}
	}

	if lookahead := os.Getenv("DRUMENGINE_LOOKAHEAD_MS"); lookahead != "" {
		if val, err := strconv.Atoi(lookahead); err == nil && val > 0 {
			cfg.Lookahead = float64(val) / 1000.0
		}
	}

	if buffer := os.Getenv("DRUMENGINE_BUFFER_MS"); buffer != "" {
		if val, err := strconv.Atoi(buffer); err == nil && val > 0 {
			cfg.OutputBuffer = time.Duration(val) * time.Millisecond
		}
	}

	if n := os.Getenv("DRUMENGINE_LOAD_CONCURRENCY"); n != "" {
		if val, err := strconv.Atoi(n); err == nil && val > 0 {
			cfg.LoadConcurrency = val
		}
	}

	// Reverb return is given as 0-100.
	if ret := os.Getenv("DRUMENGINE_REVERB_RETURN"); ret != "" {
		if val, err := strconv.Atoi(ret); err == nil {
			cfg.ReverbReturn = min(max(float64(val)/100.0, 0), 1)
		}
	}

	if dir := os.Getenv("DRUMENGINE_SAMPLE_DIR"); dir != "" {
		cfg.SampleDir = dir
	}

	return cfg
}
