// Package config loads tool settings from JSON or YAML and merges CLI
// overrides into them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"studio-pose/internal/blend"
	"studio-pose/internal/bonecache"
	"studio-pose/internal/character"
	"studio-pose/internal/ik"
)

var validate = validator.New()

// Config holds all configurable paths and evaluation settings.
type Config struct {
	// Paths
	BaseDir   string `json:"base_dir" yaml:"base_dir"`
	Rig       string `json:"rig" yaml:"rig"`
	Backdrop  string `json:"backdrop" yaml:"backdrop"`
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Evaluation
	CacheBudget    int64   `json:"cache_budget" yaml:"cache_budget" validate:"gte=0"`
	CacheTolerance float64 `json:"cache_tolerance" yaml:"cache_tolerance" validate:"gte=0"`
	ThreeWay       bool    `json:"three_way" yaml:"three_way"`
	Batch          bool    `json:"batch" yaml:"batch"`
	NoIK           bool    `json:"no_ik" yaml:"no_ik"`
	KneeMax        float64 `json:"knee_max" yaml:"knee_max" validate:"gte=0,lte=1"`
	ReleaseRate    float64 `json:"release_rate" yaml:"release_rate" validate:"gte=0"`
	Workers        int     `json:"workers" yaml:"workers" validate:"gte=0,lte=1024"`

	// Render settings
	RenderSize  int    `json:"render_size" yaml:"render_size" validate:"gte=0,lte=8192"`
	Supersample int    `json:"supersample" yaml:"supersample" validate:"gte=0,lte=8"`
	View        string `json:"view" yaml:"view" validate:"omitempty,oneof=front side top"`
}

// Load reads a config file. Files ending in .yaml or .yml are YAML,
// anything else JSON. Fields not set in the file keep their zero values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds CLI flag values that override config file settings.
type Flags struct {
	BaseDir   string
	Rig       string
	OutputDir string
	Workers   int
	Size      int
	View      string
	NoIK      bool
}

// Resolve applies flags, fills empty fields with defaults and resolves
// relative paths against BaseDir. CLI flags take priority when set.
func (c *Config) Resolve(flags Flags) {
	if flags.BaseDir != "" {
		c.BaseDir = flags.BaseDir
	}
	if flags.Rig != "" {
		c.Rig = flags.Rig
	}
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.Size > 0 {
		c.RenderSize = flags.Size
	}
	if flags.View != "" {
		c.View = flags.View
	}
	if flags.NoIK {
		c.NoIK = true
	}

	if c.BaseDir == "" {
		c.BaseDir, _ = os.Getwd()
	}
	c.Rig = c.resolvePath(c.Rig, "")
	c.Backdrop = c.resolvePath(c.Backdrop, "")
	c.OutputDir = c.resolvePath(c.OutputDir, "renders")

	if c.CacheBudget <= 0 {
		c.CacheBudget = bonecache.DefaultBudget
	}
	if c.CacheTolerance <= 0 {
		c.CacheTolerance = 0.001
	}
	if c.KneeMax <= 0 {
		c.KneeMax = ik.KneeMaxEpsilon
	}
	if c.ReleaseRate <= 0 {
		c.ReleaseRate = ik.DefaultConfig().ReleaseRate
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.RenderSize <= 0 {
		c.RenderSize = 256
	}
	if c.Supersample <= 0 {
		c.Supersample = 2
	}
	if c.View == "" {
		c.View = "front"
	}
}

// resolvePath makes p absolute against BaseDir; an empty p becomes def,
// or stays empty when def is.
func (c *Config) resolvePath(p, def string) string {
	if p == "" {
		if def == "" {
			return ""
		}
		p = def
	}
	if filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Character returns the evaluation settings for one character.
func (c *Config) Character() character.Config {
	return character.Config{
		Blend:          blend.Config{ThreeWay: c.ThreeWay, Batch: c.Batch},
		IK:             ik.Config{KneeMax: c.KneeMax, ReleaseRate: c.ReleaseRate},
		NoIK:           c.NoIK,
		CacheTolerance: c.CacheTolerance,
	}
}
