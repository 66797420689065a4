package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sephiroth74/photoframe-processor/pkg/batch"
	"github.com/sephiroth74/photoframe-processor/pkg/combine"
	"github.com/sephiroth74/photoframe-processor/pkg/detection"
	"github.com/sephiroth74/photoframe-processor/pkg/dither"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Display   DisplayConfig   `json:"display" yaml:"display"`
	Output    OutputConfig    `json:"output" yaml:"output"`
	Dither    DitherConfig    `json:"dither" yaml:"dither"`
	Adjust    AdjustConfig    `json:"adjust" yaml:"adjust"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Combine   CombineConfig   `json:"combine" yaml:"combine"`
	Run       RunConfig       `json:"run" yaml:"run"`
}

// DisplayConfig describes the target panel
type DisplayConfig struct {
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	Type        string `json:"type" yaml:"type"`
	Orientation string `json:"orientation" yaml:"orientation"`
	AutoSwap    bool   `json:"auto_swap" yaml:"auto_swap"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir     string   `json:"dir" yaml:"dir"`
	Formats []string `json:"formats" yaml:"formats"`
}

// DitherConfig selects the color reduction
type DitherConfig struct {
	Method       string  `json:"method" yaml:"method"`
	Strength     float64 `json:"strength" yaml:"strength"`
	AutoOptimize bool    `json:"auto_optimize" yaml:"auto_optimize"`
}

// AdjustConfig holds the color adjustments applied before dithering
type AdjustConfig struct {
	Brightness int  `json:"brightness" yaml:"brightness"`
	Contrast   int  `json:"contrast" yaml:"contrast"`
	AutoColor  bool `json:"auto_color" yaml:"auto_color"`
}

// Detection backends
const (
	BackendScript   = "script"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// DetectionConfig holds configuration for people detection
type DetectionConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Backend     string  `json:"backend" yaml:"backend"`
	Script      string  `json:"script" yaml:"script"`
	Python      string  `json:"python" yaml:"python"`
	OllamaURL   string  `json:"ollama_url" yaml:"ollama_url"`
	LlamaCppURL string  `json:"llamacpp_url" yaml:"llamacpp_url"`
	Model       string  `json:"model" yaml:"model"`
	Confidence  float64 `json:"confidence" yaml:"confidence"`
}

// CombineConfig styles the divider between paired images
type CombineConfig struct {
	DividerWidth int    `json:"divider_width" yaml:"divider_width"`
	DividerColor string `json:"divider_color" yaml:"divider_color"`
}

// RunConfig controls a batch run
type RunConfig struct {
	Jobs         int      `json:"jobs" yaml:"jobs"`
	Force        bool     `json:"force" yaml:"force"`
	DryRun       bool     `json:"dry_run" yaml:"dry_run"`
	JSONProgress bool     `json:"json_progress" yaml:"json_progress"`
	Debug        bool     `json:"debug" yaml:"debug"`
	Verbose      bool     `json:"verbose" yaml:"verbose"`
	Seed         int64    `json:"seed" yaml:"seed"`
	Extensions   []string `json:"extensions" yaml:"extensions"`
	MaxDepth     int      `json:"max_depth" yaml:"max_depth"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Display: DisplayConfig{
			Width:       800,
			Height:      480,
			Type:        string(types.SixColor),
			Orientation: string(batch.TargetLandscape),
		},
		Output: OutputConfig{
			Dir:     "./output",
			Formats: []string{"bmp", "bin"},
		},
		Dither: DitherConfig{
			Method:   dither.FloydSteinberg.String(),
			Strength: dither.DefaultStrength,
		},
		Detection: DetectionConfig{
			Backend:     BackendScript,
			Python:      "python3",
			OllamaURL:   "http://localhost:11434",
			LlamaCppURL: "http://localhost:8080",
			Model:       "llava",
			Confidence:  detection.DefaultConfidence,
		},
		Combine: CombineConfig{
			DividerWidth: combine.DefaultDividerWidth,
			DividerColor: "#FFFFFF",
		},
		Run: RunConfig{
			Jobs:     runtime.NumCPU(),
			MaxDepth: batch.DefaultMaxDepth,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// extension. Missing keys keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads envFile into the environment when it exists and overlays
// the PHOTOFRAME_* variables. Variables already set take precedence over
// the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	c.Detection.Script = getEnv("PHOTOFRAME_DETECTOR_SCRIPT", c.Detection.Script)
	c.Detection.Python = getEnv("PHOTOFRAME_PYTHON", c.Detection.Python)
	c.Detection.OllamaURL = getEnv("PHOTOFRAME_OLLAMA_URL", c.Detection.OllamaURL)
	c.Detection.LlamaCppURL = getEnv("PHOTOFRAME_LLAMACPP_URL", c.Detection.LlamaCppURL)
	c.Detection.Model = getEnv("PHOTOFRAME_OLLAMA_MODEL", c.Detection.Model)
	c.Run.Jobs = getEnvAsInt("PHOTOFRAME_JOBS", c.Run.Jobs)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Display.Width < 10 || c.Display.Height < 10 {
		return fmt.Errorf("display size must be at least 10x10, got %dx%d", c.Display.Width, c.Display.Height)
	}

	if _, err := types.ParseProcessingType(c.Display.Type); err != nil {
		return fmt.Errorf("display.type: %w", err)
	}

	if _, err := batch.ParseTargetOrientation(c.Display.Orientation); err != nil {
		return fmt.Errorf("display.orientation: %w", err)
	}

	if _, err := processing.ParseFormats(strings.Join(c.Output.Formats, ",")); err != nil {
		return fmt.Errorf("output.formats: %w", err)
	}

	if _, err := dither.ParseMethod(c.Dither.Method); err != nil {
		return fmt.Errorf("dither.method: %w", err)
	}

	if c.Dither.Strength < dither.MinStrength || c.Dither.Strength > dither.MaxStrength {
		return fmt.Errorf("dither.strength must be between %.1f and %.1f", dither.MinStrength, dither.MaxStrength)
	}

	if c.Adjust.Brightness < -100 || c.Adjust.Brightness > 100 {
		return fmt.Errorf("adjust.brightness must be between -100 and 100")
	}

	if c.Adjust.Contrast < -100 || c.Adjust.Contrast > 100 {
		return fmt.Errorf("adjust.contrast must be between -100 and 100")
	}

	if c.Detection.Confidence < 0 || c.Detection.Confidence > 1 {
		return fmt.Errorf("detection.confidence must be between 0 and 1")
	}

	if c.Detection.Enabled {
		switch c.Detection.Backend {
		case BackendScript:
			if c.Detection.Script == "" {
				return fmt.Errorf("detection.script is required for the script backend")
			}
		case BackendOllama, BackendLlamaCpp:
			if c.Detection.Model == "" {
				return fmt.Errorf("detection.model is required for the %s backend", c.Detection.Backend)
			}
		default:
			return fmt.Errorf("unknown detection.backend %q", c.Detection.Backend)
		}
	}

	if c.Combine.DividerWidth < 0 {
		return fmt.Errorf("combine.divider_width cannot be negative")
	}

	if _, err := combine.ParseColor(c.Combine.DividerColor); err != nil {
		return fmt.Errorf("combine.divider_color: %w", err)
	}

	if c.Run.Jobs < 1 {
		return fmt.Errorf("run.jobs must be positive")
	}

	return nil
}

// ToBatchOptions converts a validated configuration into batch options.
// The detector is left unset; callers build it from Detection.
func (c *Config) ToBatchOptions() (batch.Options, error) {
	if err := c.Validate(); err != nil {
		return batch.Options{}, err
	}

	t, _ := types.ParseProcessingType(c.Display.Type)
	target, _ := batch.ParseTargetOrientation(c.Display.Orientation)
	formats, _ := processing.ParseFormats(strings.Join(c.Output.Formats, ","))
	method, _ := dither.ParseMethod(c.Dither.Method)
	divider, _ := combine.ParseColor(c.Combine.DividerColor)

	return batch.Options{
		OutputDir:    c.Output.Dir,
		Width:        c.Display.Width,
		Height:       c.Display.Height,
		Type:         t,
		Target:       target,
		AutoSwap:     c.Display.AutoSwap,
		Formats:      formats,
		Method:       method,
		Strength:     c.Dither.Strength,
		AutoOptimize: c.Dither.AutoOptimize,
		AutoColor:    c.Adjust.AutoColor,
		Brightness:   c.Adjust.Brightness,
		Contrast:     c.Adjust.Contrast,
		Confidence:   c.Detection.Confidence,
		DividerWidth: c.Combine.DividerWidth,
		DividerColor: divider,
		Jobs:         c.Run.Jobs,
		Force:        c.Run.Force,
		DryRun:       c.Run.DryRun,
		Debug:        c.Run.Debug,
		Verbose:      c.Run.Verbose,
		Seed:         c.Run.Seed,
		Extensions:   c.Run.Extensions,
		MaxDepth:     c.Run.MaxDepth,
	}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "photoframe-processor", "config.json")
}
