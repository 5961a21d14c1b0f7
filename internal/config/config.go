// Package config holds all configurable service and gameplay settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"dr-shooter/internal/placement"
	"dr-shooter/internal/segment"
	"dr-shooter/internal/session"
)

// Config holds all configurable service and gameplay settings.
type Config struct {
	// Segmentation service
	ServiceURL        string  `yaml:"service_url" validate:"required,url"`
	RequestTimeoutSec int     `yaml:"request_timeout_sec" validate:"gte=0"`
	Conf              float64 `yaml:"conf" validate:"gte=0.1,lte=0.9"`
	IOU               float64 `yaml:"iou" validate:"gte=0.1,lte=0.9"`
	MaxMasks          int     `yaml:"max_masks" validate:"gte=1,lte=20"`
	MinArea           float64 `yaml:"min_area" validate:"gte=0,lte=1"`
	// Pointer so an omitted key is told apart from an explicit false; the
	// service default is true.
	CombinedInpaint   *bool   `yaml:"combined_inpaint"`
	DilatePixels      int     `yaml:"dilate_pixels" validate:"gte=0"`
	InpaintScale      float64 `yaml:"inpaint_scale" validate:"omitempty,gte=0.25,lte=1"`
	ExcludeBackground string  `yaml:"exclude_background" validate:"omitempty,oneof=none segformer heuristic"`
	OverlapThreshold  float64 `yaml:"background_overlap_threshold" validate:"gte=0,lte=1"`

	// Placement
	FOVDegrees     float64 `yaml:"fov_degrees" validate:"gt=0,lt=180"`
	FixedDepth     float64 `yaml:"fixed_depth" validate:"gt=0"`
	MinHitDistance float64 `yaml:"min_hit_distance" validate:"gte=0"`
	DepthMode      string  `yaml:"depth_mode" validate:"oneof=none center multiPoint"`

	// Session
	RestartCooldownMS  int `yaml:"restart_cooldown_ms" validate:"gte=0"`
	CalibrationSamples int `yaml:"calibration_samples" validate:"gte=0,lte=20"`
}

// Load reads a YAML config file and returns Config.
// Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	ServiceURL string
	DepthMode  string
	FixedDepth float64
}

// Resolve fills in any empty fields with defaults.
// Precedence: CLI flags, then environment, then the config file, then
// defaults. A .env file, if present, is folded into the environment first.
func (c *Config) Resolve(flags Flags) {
	_ = godotenv.Load() // a missing .env is fine

	// Environment overrides config file
	if v := os.Getenv("DR_SERVICE_URL"); v != "" {
		c.ServiceURL = v
	}
	if v := os.Getenv("DR_DEPTH_MODE"); v != "" {
		c.DepthMode = v
	}
	if v := os.Getenv("DR_FIXED_DEPTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.FixedDepth = f
		}
	}

	// CLI flags override everything
	if flags.ServiceURL != "" {
		c.ServiceURL = flags.ServiceURL
	}
	if flags.DepthMode != "" {
		c.DepthMode = flags.DepthMode
	}
	if flags.FixedDepth > 0 {
		c.FixedDepth = flags.FixedDepth
	}

	// Service defaults match the segmentation service's request schema.
	if c.ServiceURL == "" {
		c.ServiceURL = "http://localhost:8000"
	}
	if c.RequestTimeoutSec <= 0 {
		c.RequestTimeoutSec = 60
	}
	if c.Conf == 0 {
		c.Conf = 0.25
	}
	if c.IOU == 0 {
		c.IOU = 0.9
	}
	if c.MaxMasks <= 0 {
		c.MaxMasks = 20
	}
	if c.MinArea == 0 {
		c.MinArea = 0.005
	}
	if c.CombinedInpaint == nil {
		combined := true
		c.CombinedInpaint = &combined
	}
	if c.DilatePixels <= 0 {
		c.DilatePixels = 10
	}
	if c.InpaintScale == 0 {
		c.InpaintScale = 0.25
	}
	if c.ExcludeBackground == "" {
		c.ExcludeBackground = "none"
	}
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = 0.5
	}

	// Placement defaults match the headset's passthrough camera.
	if c.FOVDegrees == 0 {
		c.FOVDegrees = 97
	}
	if c.FixedDepth == 0 {
		c.FixedDepth = 2.5
	}
	if c.MinHitDistance == 0 {
		c.MinHitDistance = 0.5
	}
	if c.DepthMode == "" {
		c.DepthMode = string(placement.DepthMultiPoint)
	}

	if c.RestartCooldownMS <= 0 {
		c.RestartCooldownMS = 3000
	}
	if c.CalibrationSamples <= 0 {
		c.CalibrationSamples = 5
	}
}

// Validate checks field ranges after Resolve.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Timeout returns the segmentation request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Request builds the segmentation request template (Image left empty).
func (c *Config) Request() segment.Request {
	combined := true
	if c.CombinedInpaint != nil {
		combined = *c.CombinedInpaint
	}
	return segment.Request{
		Conf:                       c.Conf,
		IOU:                        c.IOU,
		MaxMasks:                   c.MaxMasks,
		MinArea:                    c.MinArea,
		CombinedInpaint:            combined,
		DilatePixels:               c.DilatePixels,
		InpaintScale:               c.InpaintScale,
		ExcludeBackground:          c.ExcludeBackground,
		BackgroundOverlapThreshold: c.OverlapThreshold,
	}
}

// Placement builds the placement config. Calibration parameters are filled
// in by the session from the calibration store.
func (c *Config) Placement() placement.Config {
	return placement.Config{
		FOVDegrees:     c.FOVDegrees,
		FixedDepth:     c.FixedDepth,
		MinHitDistance: c.MinHitDistance,
		DepthMode:      placement.DepthMode(c.DepthMode),
	}
}

// Session builds the session config.
func (c *Config) Session() session.Config {
	return session.Config{
		Request:         c.Request(),
		Placement:       c.Placement(),
		RestartCooldown: time.Duration(c.RestartCooldownMS) * time.Millisecond,
	}
}
