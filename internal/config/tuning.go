package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeurDeLis/lidar-ws/internal/lidar/l2frames"
	"github.com/LeurDeLis/lidar-ws/internal/serialmux"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for a sensor. Every field
// is optional; the Get* methods supply defaults for omitted fields so
// partial configs are safe. The same keys are accepted from JSON and YAML.
type TuningConfig struct {
	// Sensor
	SensorID       *string  `json:"sensor_id,omitempty" yaml:"sensor_id,omitempty"`
	ProductType    *string  `json:"product_type,omitempty" yaml:"product_type,omitempty"`
	ScanDirection  *string  `json:"scan_direction,omitempty" yaml:"scan_direction,omitempty"` // "cw" or "ccw"
	MountOffsetDeg *float64 `json:"mount_offset_deg,omitempty" yaml:"mount_offset_deg,omitempty"`

	// Serial port
	SerialPort *string `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty" yaml:"parity,omitempty"`

	// Frame assembly
	GateMultiplier     *float64 `json:"gate_multiplier,omitempty" yaml:"gate_multiplier,omitempty"`
	OversizeMultiplier *float64 `json:"oversize_multiplier,omitempty" yaml:"oversize_multiplier,omitempty"`
	WatchdogMultiplier *float64 `json:"watchdog_multiplier,omitempty" yaml:"watchdog_multiplier,omitempty"`

	// Near filter
	NearFilterEnabled   *bool `json:"near_filter_enabled,omitempty" yaml:"near_filter_enabled,omitempty"`
	NearFilterMinGroup  *int  `json:"near_filter_min_group,omitempty" yaml:"near_filter_min_group,omitempty"`
	NearFilterIntensity *int  `json:"near_filter_intensity,omitempty" yaml:"near_filter_intensity,omitempty"`

	// Recording and stats
	RecordDBPath  *string `json:"record_db_path,omitempty" yaml:"record_db_path,omitempty"`
	RecordEvery   *int    `json:"record_every,omitempty" yaml:"record_every,omitempty"`
	RecordKeep    *int    `json:"record_keep,omitempty" yaml:"record_keep,omitempty"`
	StatsInterval *string `json:"stats_interval,omitempty" yaml:"stats_interval,omitempty"` // duration string like "5s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a .json, .yaml or .yml file
// under 1MB. Fields omitted from the file retain their default values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/lidar/l2frames/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ProductType != nil {
		if _, err := l2frames.ParseProductType(*c.ProductType); err != nil {
			return err
		}
	}
	if c.ScanDirection != nil {
		if _, err := l2frames.ParseScanDirection(*c.ScanDirection); err != nil {
			return err
		}
	}
	if c.MountOffsetDeg != nil && (*c.MountOffsetDeg <= -360 || *c.MountOffsetDeg >= 360) {
		return fmt.Errorf("mount_offset_deg must be within (-360, 360), got %f", *c.MountOffsetDeg)
	}

	if _, err := c.PortOptions().Normalize(); err != nil {
		return fmt.Errorf("invalid serial settings: %w", err)
	}

	for name, v := range map[string]*float64{
		"gate_multiplier":     c.GateMultiplier,
		"oversize_multiplier": c.OversizeMultiplier,
		"watchdog_multiplier": c.WatchdogMultiplier,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	// A watchdog below the oversize limit would truncate revolutions that
	// could still be published.
	if c.GetWatchdogMultiplier() < c.GetOversizeMultiplier() {
		return fmt.Errorf("watchdog_multiplier (%g) must not be below oversize_multiplier (%g)",
			c.GetWatchdogMultiplier(), c.GetOversizeMultiplier())
	}

	if c.NearFilterMinGroup != nil && *c.NearFilterMinGroup < 1 {
		return fmt.Errorf("near_filter_min_group must be at least 1, got %d", *c.NearFilterMinGroup)
	}
	if c.NearFilterIntensity != nil && (*c.NearFilterIntensity < 0 || *c.NearFilterIntensity > 255) {
		return fmt.Errorf("near_filter_intensity must be between 0 and 255, got %d", *c.NearFilterIntensity)
	}

	if c.RecordEvery != nil && *c.RecordEvery < 0 {
		return fmt.Errorf("record_every must be non-negative, got %d", *c.RecordEvery)
	}
	if c.RecordKeep != nil && *c.RecordKeep < 0 {
		return fmt.Errorf("record_keep must be non-negative, got %d", *c.RecordKeep)
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		d, err := time.ParseDuration(*c.StatsInterval)
		if err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("stats_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetSensorID returns the sensor_id value or the default.
func (c *TuningConfig) GetSensorID() string {
	if c.SensorID == nil || *c.SensorID == "" {
		return "ldlidar"
	}
	return *c.SensorID
}

// GetProductType returns the parsed product_type or LD06.
func (c *TuningConfig) GetProductType() l2frames.ProductType {
	if c.ProductType == nil {
		return l2frames.ProductLD06
	}
	p, err := l2frames.ParseProductType(*c.ProductType)
	if err != nil {
		return l2frames.ProductLD06
	}
	return p
}

// GetScanDirection returns the parsed scan_direction or clockwise.
func (c *TuningConfig) GetScanDirection() l2frames.ScanDirection {
	if c.ScanDirection == nil {
		return l2frames.Clockwise
	}
	d, err := l2frames.ParseScanDirection(*c.ScanDirection)
	if err != nil {
		return l2frames.Clockwise
	}
	return d
}

// GetMountOffsetDeg returns the mount_offset_deg value or the default.
func (c *TuningConfig) GetMountOffsetDeg() float64 {
	if c.MountOffsetDeg == nil {
		return 0
	}
	return *c.MountOffsetDeg
}

// GetSerialPort returns the serial_port value or the default.
func (c *TuningConfig) GetSerialPort() string {
	if c.SerialPort == nil || *c.SerialPort == "" {
		return "/dev/ttyUSB0"
	}
	return *c.SerialPort
}

// PortOptions returns the serial settings. Unset fields are left zero for
// PortOptions.Normalize to default.
func (c *TuningConfig) PortOptions() serialmux.PortOptions {
	var opts serialmux.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetGateMultiplier returns the gate_multiplier value or the default.
func (c *TuningConfig) GetGateMultiplier() float64 {
	if c.GateMultiplier == nil {
		return l2frames.DefaultGateMultiplier
	}
	return *c.GateMultiplier
}

// GetOversizeMultiplier returns the oversize_multiplier value or the default.
func (c *TuningConfig) GetOversizeMultiplier() float64 {
	if c.OversizeMultiplier == nil {
		return l2frames.DefaultOversizeMultiplier
	}
	return *c.OversizeMultiplier
}

// GetWatchdogMultiplier returns the watchdog_multiplier value or the default.
func (c *TuningConfig) GetWatchdogMultiplier() float64 {
	if c.WatchdogMultiplier == nil {
		return l2frames.DefaultWatchdogMultiplier
	}
	return *c.WatchdogMultiplier
}

// GetNearFilterEnabled returns the near_filter_enabled value or the default.
func (c *TuningConfig) GetNearFilterEnabled() bool {
	if c.NearFilterEnabled == nil {
		return true
	}
	return *c.NearFilterEnabled
}

// GetNearFilterMinGroup returns the near_filter_min_group value or the default.
func (c *TuningConfig) GetNearFilterMinGroup() int {
	if c.NearFilterMinGroup == nil {
		return 3
	}
	return *c.NearFilterMinGroup
}

// GetNearFilterIntensity returns the near_filter_intensity value or the default.
func (c *TuningConfig) GetNearFilterIntensity() int {
	if c.NearFilterIntensity == nil {
		return 92
	}
	return *c.NearFilterIntensity
}

// GetRecordDBPath returns the record_db_path value. Empty disables recording.
func (c *TuningConfig) GetRecordDBPath() string {
	if c.RecordDBPath == nil {
		return ""
	}
	return *c.RecordDBPath
}

// GetRecordEvery returns how many published frames pass between recorded
// frames. Zero records nothing.
func (c *TuningConfig) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return 10
	}
	return *c.RecordEvery
}

// GetRecordKeep returns how many recorded frames per sensor are retained.
// Zero keeps every frame.
func (c *TuningConfig) GetRecordKeep() int {
	if c.RecordKeep == nil {
		return 36000
	}
	return *c.RecordKeep
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil || d <= 0 {
		return 5 * time.Second // default on parse error
	}
	return d
}
