package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// Scan contains settings for scan orchestration. Empty binary paths fall
// back to $PATH lookup.
type Scan struct {
	Workers       int    `toml:"workers"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
}

// Hashing contains settings for perceptual hash computation.
type Hashing struct {
	ThumbnailEdge int     `toml:"thumbnail_edge"`
	FramePosition float64 `toml:"frame_position"`
	WeightP       float64 `toml:"weight_p"`
	WeightD       float64 `toml:"weight_d"`
	WeightA       float64 `toml:"weight_a"`
}

// Image contains thresholds for still-image comparison.
type Image struct {
	ExactThreshold   float64 `toml:"exact_threshold"`
	SimilarThreshold float64 `toml:"similar_threshold"`
	SizeTolerance    float64 `toml:"size_tolerance"`
}

// Video contains duration gates for video comparison. Caps are in seconds,
// ratios are fractions of the longer duration; the effective gate is the
// smaller of the two.
type Video struct {
	ExactDurationCap     float64 `toml:"exact_duration_cap"`
	ExactDurationRatio   float64 `toml:"exact_duration_ratio"`
	SimilarDurationCap   float64 `toml:"similar_duration_cap"`
	SimilarDurationRatio float64 `toml:"similar_duration_ratio"`
}

// Location contains settings for GPS-based agreement checks.
type Location struct {
	AgreementRadiusMeters float64 `toml:"agreement_radius_meters"`
	DecayMeters           float64 `toml:"decay_meters"`
}

// Confidence contains floors and caps applied to match confidence.
type Confidence struct {
	ExactFloor float64 `toml:"exact_floor"`
	DeviceCap  float64 `toml:"device_cap"`
	Degraded   float64 `toml:"degraded"`
}

// Config encapsulates all tunables of the duplicate detection engine.
type Config struct {
	Scan       Scan       `toml:"scan"`
	Hashing    Hashing    `toml:"hashing"`
	Image      Image      `toml:"image"`
	Video      Video      `toml:"video"`
	Location   Location   `toml:"location"`
	Confidence Confidence `toml:"confidence"`
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Scan: Scan{
			Workers: 8,
		},
		Hashing: Hashing{
			ThumbnailEdge: 64,
			FramePosition: 0.1,
			WeightP:       0.4,
			WeightD:       0.4,
			WeightA:       0.2,
		},
		Image: Image{
			ExactThreshold:   0.05,
			SimilarThreshold: 0.15,
			SizeTolerance:    0.01,
		},
		Video: Video{
			ExactDurationCap:     0.1,
			ExactDurationRatio:   0.001,
			SimilarDurationCap:   0.5,
			SimilarDurationRatio: 0.01,
		},
		Location: Location{
			AgreementRadiusMeters: 100,
			DecayMeters:           1000,
		},
		Confidence: Confidence{
			ExactFloor: 0.85,
			DeviceCap:  0.9,
			Degraded:   0.85,
		},
	}
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	return homedir.Expand("~/.config/neardup/config.toml")
}

// Load parses and validates a configuration file, layered over defaults.
// A missing file at the default location is not an error; an explicitly
// given path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, fmt.Errorf("expand config path: %w", err)
	}

	file, err := os.Open(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Scan.Workers < 1 {
		return errors.New("scan.workers must be at least 1")
	}
	if c.Hashing.ThumbnailEdge < 8 {
		return errors.New("hashing.thumbnail_edge must be at least 8")
	}
	if c.Hashing.FramePosition <= 0 || c.Hashing.FramePosition >= 1 {
		return errors.New("hashing.frame_position must be between 0 and 1 exclusive")
	}
	for key, w := range map[string]float64{
		"hashing.weight_p": c.Hashing.WeightP,
		"hashing.weight_d": c.Hashing.WeightD,
		"hashing.weight_a": c.Hashing.WeightA,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	if c.Hashing.WeightP+c.Hashing.WeightD+c.Hashing.WeightA <= 0 {
		return errors.New("hashing weights must not all be zero")
	}
	if c.Image.ExactThreshold <= 0 {
		return errors.New("image.exact_threshold must be positive")
	}
	if c.Image.SimilarThreshold <= c.Image.ExactThreshold {
		return errors.New("image.similar_threshold must be greater than image.exact_threshold")
	}
	if c.Image.SimilarThreshold > 0.20 {
		return errors.New("image.similar_threshold must not exceed 0.20")
	}
	if c.Image.SizeTolerance < 0 || c.Image.SizeTolerance >= 1 {
		return errors.New("image.size_tolerance must be between 0 and 1")
	}
	if c.Video.ExactDurationCap <= 0 || c.Video.ExactDurationRatio <= 0 {
		return errors.New("video exact duration gates must be positive")
	}
	if c.Video.SimilarDurationCap < c.Video.ExactDurationCap {
		return errors.New("video.similar_duration_cap must be at least video.exact_duration_cap")
	}
	if c.Video.SimilarDurationRatio < c.Video.ExactDurationRatio {
		return errors.New("video.similar_duration_ratio must be at least video.exact_duration_ratio")
	}
	if c.Location.AgreementRadiusMeters <= 0 {
		return errors.New("location.agreement_radius_meters must be positive")
	}
	if c.Location.DecayMeters <= 0 {
		return errors.New("location.decay_meters must be positive")
	}
	for key, v := range map[string]float64{
		"confidence.exact_floor": c.Confidence.ExactFloor,
		"confidence.device_cap":  c.Confidence.DeviceCap,
		"confidence.degraded":    c.Confidence.Degraded,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", key)
		}
	}
	return nil
}

// DefaultDataDir returns the directory holding the scan database and lock.
func DefaultDataDir() (string, error) {
	dir, err := homedir.Expand("~/.local/share/neardup")
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return dir, nil
}

// EnsureDataDir creates the data directory when missing.
func EnsureDataDir(dir string) error {
	if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
		return fmt.Errorf("create data dir %q: %w", dir, err)
	}
	return nil
}
