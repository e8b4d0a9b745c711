package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/aerialplan/config.json"
	defaultParallel   = 4

	// EnvConfigPath overrides the config file location.
	EnvConfigPath = "AERIALPLAN_CONFIG"
)

// Config holds user-editable settings for the planner.
type Config struct {
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	Server     Server     `json:"server"`
	Processing Processing `json:"processing"`
	Safety     Safety     `json:"safety"`
	Flight     Flight     `json:"flight"`
	Survey     Survey     `json:"survey"`
	Camera     Camera     `json:"camera"`
	Mission    Mission    `json:"mission"`
}

// Logging selects level and format. With FileOutput set, lines are also
// written to LogDir/aerialplan.log, rotated at MaxSize MB and kept for
// MaxAge days or MaxBackups files.
type Logging struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	FileOutput bool   `json:"file_output"`
	LogDir     string `json:"log_dir"`
	MaxSize    int    `json:"max_size"`
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"`
	Compress   bool   `json:"compress"`
}

// Paths configures storage locations.
type Paths struct {
	DatabasePath string `json:"database_path"`
	WatchDir     string `json:"watch_dir"` // directory of *.plan.json requests
}

// Server configures the HTTP API.
type Server struct {
	Addr string `json:"addr"`
}

// Processing sizes the worker pool and the plan cache.
type Processing struct {
	ParallelJobs    int `json:"parallel_jobs"`
	QueueSize       int `json:"queue_size"`
	CacheSize       int `json:"cache_size"` // 0 disables the plan cache
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// Safety bounds every plan.
type Safety struct {
	MinAltitude float64 `json:"min_altitude"` // m above origin
	MaxAltitude float64 `json:"max_altitude"`
	MinGSD      float64 `json:"min_gsd"` // cm/px, 0 disables
	MaxGSD      float64 `json:"max_gsd"`
}

// Flight holds defaults for flight-time estimates.
type Flight struct {
	DefaultSpeed           float64 `json:"default_speed"` // m/s
	HoverPerCaptureSeconds float64 `json:"hover_per_capture_seconds"`
}

// Survey holds the crosswind rule: above WindThresholdMS the flight lines
// run at the wind direction plus WindOffsetDeg.
type Survey struct {
	WindThresholdMS float64 `json:"wind_threshold_ms"`
	WindOffsetDeg   float64 `json:"wind_offset_deg"`
}

// Camera selects the preset used when a request names no camera.
type Camera struct {
	DefaultPreset string `json:"default_preset"`
}

// Mission names the mission whose origin and plans are persisted.
type Mission struct {
	ID string `json:"id"`
}

// Path returns the config file location after env override and ~
// expansion.
func Path() (string, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		configPath = defaultConfigPath
	}
	return expandUser(configPath)
}

// Load reads the config file named by AERIALPLAN_CONFIG or the default
// path. A missing file yields Default().
func Load() (*Config, error) {
	cfg := Default()

	expanded, err := Path()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", expanded, err)
	}

	return cfg, nil
}

// Save writes cfg as indented JSON, creating parent directories.
func (c *Config) Save(path string) error {
	expanded, err := expandUser(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, append(data, '\n'), 0644)
}

// Validate rejects settings the planner cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Processing.ParallelJobs < 1:
		return errors.New("processing.parallel_jobs must be at least 1")
	case c.Processing.CacheSize < 0:
		return errors.New("processing.cache_size must not be negative")
	case c.Safety.MinAltitude <= 0:
		return errors.New("safety.min_altitude must be positive")
	case c.Safety.MaxAltitude <= c.Safety.MinAltitude:
		return errors.New("safety.max_altitude must exceed safety.min_altitude")
	case c.Safety.MinGSD < 0 || c.Safety.MaxGSD < 0:
		return errors.New("safety gsd bounds must not be negative")
	case c.Safety.MaxGSD > 0 && c.Safety.MinGSD > c.Safety.MaxGSD:
		return errors.New("safety.min_gsd must not exceed safety.max_gsd")
	case c.Flight.DefaultSpeed <= 0:
		return errors.New("flight.default_speed must be positive")
	case c.Flight.HoverPerCaptureSeconds < 0:
		return errors.New("flight.hover_per_capture_seconds must not be negative")
	case c.Survey.WindThresholdMS < 0:
		return errors.New("survey.wind_threshold_ms must not be negative")
	case c.Mission.ID == "":
		return errors.New("mission.id must not be empty")
	}
	return nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: false,
			LogDir:     "./logs",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
		},
		Paths: Paths{
			DatabasePath: filepath.Join(os.TempDir(), "aerialplan.db"),
			WatchDir:     "./missions",
		},
		Server: Server{Addr: ":8080"},
		Processing: Processing{
			ParallelJobs:    defaultParallel,
			QueueSize:       defaultParallel * 8,
			CacheSize:       256,
			CacheTTLSeconds: 600,
		},
		Safety:  Safety{MinAltitude: 5, MaxAltitude: 500},
		Flight:  Flight{DefaultSpeed: 5, HoverPerCaptureSeconds: 1},
		Survey:  Survey{WindThresholdMS: 3, WindOffsetDeg: 90},
		Camera:  Camera{DefaultPreset: "phantom4pro"},
		Mission: Mission{ID: "default"},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
