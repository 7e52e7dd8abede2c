package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/xcbolt/xcreport/internal/util"
)

const ConfigVersion = 1

type ConfigVersionError struct {
	Path string
	Got  int
	Want int
}

func (e ConfigVersionError) Error() string {
	return fmt.Sprintf("config version mismatch for %s: got v%d, expected v%d", e.Path, e.Got, e.Want)
}

// Duration is a time.Duration that reads and writes as a Go duration string ("60s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"60s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Version int `json:"version"`

	// Xcrun is the tool used to reach xcodebuild, xcresulttool and xccov.
	Xcrun string `json:"xcrun,omitempty"`

	// Workers bounds the per-file fallback conversion pool. 0 means one per CPU.
	Workers int `json:"workers,omitempty"`

	// ShutdownTimeout is the grace period for in-flight conversions once all
	// files were handed to the pool.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty"`

	// FileTimeout bounds a single `xccov view --file` call. 0 disables it.
	FileTimeout Duration `json:"fileTimeout"`

	// WorkDir is the parent of the per-run temporary directory.
	WorkDir string `json:"workDir,omitempty"`

	// OutputDir receives the flat reports. Empty means next to each input.
	OutputDir string `json:"outputDir,omitempty"`

	MetricsFile string `json:"metricsFile,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version:         ConfigVersion,
		Xcrun:           "xcrun",
		ShutdownTimeout: Duration(60 * time.Second),
		FileTimeout:     Duration(5 * time.Minute),
		WorkDir:         os.TempDir(),
	}
}

// EffectiveWorkers resolves the worker count, defaulting to the CPU count.
func (c Config) EffectiveWorkers() int {
	return WorkerCount(c.Workers)
}

// WorkerCount returns requested, or the CPU count when requested is not positive.
func WorkerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}

func ConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".xcreport", "config.json")
}

func LoadConfig(projectRoot string, overridePath string) (Config, error) {
	cfg := DefaultConfig()

	path := overridePath
	if path == "" {
		path = ConfigPath(projectRoot)
	}

	if err := util.ReadJSONFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Version != ConfigVersion {
		return cfg, ConfigVersionError{Path: path, Got: cfg.Version, Want: ConfigVersion}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	// Ensure defaults for fields the file left empty.
	def := DefaultConfig()
	if cfg.Xcrun == "" {
		cfg.Xcrun = def.Xcrun
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("shutdownTimeout must not be negative")
	}
	if c.FileTimeout < 0 {
		return errors.New("fileTimeout must not be negative")
	}
	return nil
}

func SaveConfig(projectRoot string, overridePath string, cfg Config) error {
	path := overridePath
	if path == "" {
		path = ConfigPath(projectRoot)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	cfg.Version = ConfigVersion
	return util.WriteJSONFile(path, cfg, 0o644)
}
