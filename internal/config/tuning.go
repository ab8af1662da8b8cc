package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be used
// for both startup configuration and inspection at runtime.
type TuningConfig struct {
	// Avatar params
	BodyScale            *float64 `json:"body_scale,omitempty"`
	PositionSmoothing    *float64 `json:"position_smoothing,omitempty"`
	RotationSmoothing    *float64 `json:"rotation_smoothing,omitempty"`
	ShowJoints           *bool    `json:"show_joints,omitempty"`
	ShowJointConnections *bool    `json:"show_joint_connections,omitempty"`

	// Frame loop params
	FrameInterval *string `json:"frame_interval,omitempty"` // duration string like "33ms"

	// Wall fade params
	WallFadeInDistance *float64 `json:"wall_fade_in_distance,omitempty"`
	WallOpaqueDistance *float64 `json:"wall_opaque_distance,omitempty"`
	WallTextureSpeed   *float64 `json:"wall_texture_speed,omitempty"`

	// Projectile and physics params
	BulletForce *float64 `json:"bullet_force,omitempty"`
	BulletMass  *float64 `json:"bullet_mass,omitempty"`
	PhysicsStep *string  `json:"physics_step,omitempty"` // duration string like "20ms"

	// Aim reticle params
	AimMaxDistance  *float64 `json:"aim_max_distance,omitempty"`
	AimIdleLength   *float64 `json:"aim_idle_length,omitempty"`
	AimReticleWidth *float64 `json:"aim_reticle_width,omitempty"`

	// Builder params
	ColorWheelScale *float64 `json:"color_wheel_scale,omitempty"`
	PopInDuration   *string  `json:"pop_in_duration,omitempty"`

	// Serial bridge params (optional)
	SerialBaudRate *int    `json:"serial_baud_rate,omitempty"`
	SerialParity   *string `json:"serial_parity,omitempty"`
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

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		BodyScale:            ptrFloat64(defaultBodyScale),
		PositionSmoothing:    ptrFloat64(defaultSmoothing),
		RotationSmoothing:    ptrFloat64(defaultSmoothing),
		ShowJoints:           ptrBool(true),
		ShowJointConnections: ptrBool(true),
		FrameInterval:        ptrString(defaultFrameInterval.String()),
		WallFadeInDistance:   ptrFloat64(defaultWallFadeIn),
		WallOpaqueDistance:   ptrFloat64(defaultWallOpaque),
		WallTextureSpeed:     ptrFloat64(defaultWallTextureSpeed),
		BulletForce:          ptrFloat64(defaultBulletForce),
		BulletMass:           ptrFloat64(defaultBulletMass),
		PhysicsStep:          ptrString(defaultPhysicsStep.String()),
		AimMaxDistance:       ptrFloat64(defaultAimMaxDistance),
		AimIdleLength:        ptrFloat64(defaultAimIdleLength),
		AimReticleWidth:      ptrFloat64(defaultAimReticleWidth),
		ColorWheelScale:      ptrFloat64(defaultColorWheelScale),
		PopInDuration:        ptrString(defaultPopInDuration.String()),
		SerialBaudRate:       ptrInt(defaultSerialBaudRate),
		SerialParity:         ptrString("N"),
	}
}

const (
	defaultBodyScale        = 6.0
	defaultSmoothing        = 10.0
	maxSmoothing            = 20.0
	defaultFrameInterval    = 33 * time.Millisecond
	defaultWallFadeIn       = 50.0
	defaultWallOpaque       = 20.0
	defaultWallTextureSpeed = 0.3
	defaultBulletForce      = 2000.0
	defaultBulletMass       = 1.0
	defaultPhysicsStep      = 20 * time.Millisecond
	defaultAimMaxDistance   = 100.0
	defaultAimIdleLength    = 50.0
	defaultAimReticleWidth  = 0.1
	defaultColorWheelScale  = 0.35
	defaultPopInDuration    = 250 * time.Millisecond
	defaultSerialBaudRate   = 115200
)

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
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
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from cmd/tools/plot-session/
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
	if c.BodyScale != nil && *c.BodyScale <= 0 {
		return fmt.Errorf("body_scale must be positive, got %f", *c.BodyScale)
	}

	for name, v := range map[string]*float64{
		"position_smoothing": c.PositionSmoothing,
		"rotation_smoothing": c.RotationSmoothing,
	} {
		if v != nil && (*v < 0 || *v > maxSmoothing) {
			return fmt.Errorf("%s must be between 0 and %g, got %f", name, maxSmoothing, *v)
		}
	}

	for name, v := range map[string]*string{
		"frame_interval":  c.FrameInterval,
		"physics_step":    c.PhysicsStep,
		"pop_in_duration": c.PopInDuration,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *v)
		}
	}

	if c.GetWallOpaqueDistance() > c.GetWallFadeInDistance() {
		return fmt.Errorf("wall_opaque_distance (%f) must not exceed wall_fade_in_distance (%f)",
			c.GetWallOpaqueDistance(), c.GetWallFadeInDistance())
	}

	if c.BulletMass != nil && *c.BulletMass <= 0 {
		return fmt.Errorf("bullet_mass must be positive, got %f", *c.BulletMass)
	}

	if c.SerialBaudRate != nil && *c.SerialBaudRate <= 0 {
		return fmt.Errorf("serial_baud_rate must be positive, got %d", *c.SerialBaudRate)
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetBodyScale returns the body_scale value or the default.
func (c *TuningConfig) GetBodyScale() float64 { return floatOr(c.BodyScale, defaultBodyScale) }

// GetPositionSmoothing returns the position_smoothing value or the default.
func (c *TuningConfig) GetPositionSmoothing() float64 {
	return floatOr(c.PositionSmoothing, defaultSmoothing)
}

// GetRotationSmoothing returns the rotation_smoothing value or the default.
func (c *TuningConfig) GetRotationSmoothing() float64 {
	return floatOr(c.RotationSmoothing, defaultSmoothing)
}

// GetShowJoints returns the show_joints value or the default.
func (c *TuningConfig) GetShowJoints() bool { return boolOr(c.ShowJoints, true) }

// GetShowJointConnections returns the show_joint_connections value or the default.
func (c *TuningConfig) GetShowJointConnections() bool {
	return boolOr(c.ShowJointConnections, true)
}

// GetFrameInterval parses and returns the FrameInterval as a time.Duration.
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return durationOr(c.FrameInterval, defaultFrameInterval)
}

// GetWallFadeInDistance returns the wall_fade_in_distance value or the default.
func (c *TuningConfig) GetWallFadeInDistance() float64 {
	return floatOr(c.WallFadeInDistance, defaultWallFadeIn)
}

// GetWallOpaqueDistance returns the wall_opaque_distance value or the default.
func (c *TuningConfig) GetWallOpaqueDistance() float64 {
	return floatOr(c.WallOpaqueDistance, defaultWallOpaque)
}

// GetWallTextureSpeed returns the wall_texture_speed value or the default.
func (c *TuningConfig) GetWallTextureSpeed() float64 {
	return floatOr(c.WallTextureSpeed, defaultWallTextureSpeed)
}

// GetBulletForce returns the bullet_force value or the default.
func (c *TuningConfig) GetBulletForce() float64 { return floatOr(c.BulletForce, defaultBulletForce) }

// GetBulletMass returns the bullet_mass value or the default.
func (c *TuningConfig) GetBulletMass() float64 { return floatOr(c.BulletMass, defaultBulletMass) }

// GetPhysicsStep parses and returns the PhysicsStep as a time.Duration.
func (c *TuningConfig) GetPhysicsStep() time.Duration {
	return durationOr(c.PhysicsStep, defaultPhysicsStep)
}

// GetAimMaxDistance returns the aim_max_distance value or the default.
func (c *TuningConfig) GetAimMaxDistance() float64 {
	return floatOr(c.AimMaxDistance, defaultAimMaxDistance)
}

// GetAimIdleLength returns the aim_idle_length value or the default.
func (c *TuningConfig) GetAimIdleLength() float64 {
	return floatOr(c.AimIdleLength, defaultAimIdleLength)
}

// GetAimReticleWidth returns the aim_reticle_width value or the default.
func (c *TuningConfig) GetAimReticleWidth() float64 {
	return floatOr(c.AimReticleWidth, defaultAimReticleWidth)
}

// GetColorWheelScale returns the color_wheel_scale value or the default.
func (c *TuningConfig) GetColorWheelScale() float64 {
	return floatOr(c.ColorWheelScale, defaultColorWheelScale)
}

// GetPopInDuration parses and returns the PopInDuration as a time.Duration.
func (c *TuningConfig) GetPopInDuration() time.Duration {
	return durationOr(c.PopInDuration, defaultPopInDuration)
}

// GetSerialBaudRate returns the serial_baud_rate value or the default.
func (c *TuningConfig) GetSerialBaudRate() int {
	if c.SerialBaudRate == nil {
		return defaultSerialBaudRate
	}
	return *c.SerialBaudRate
}

// GetSerialParity returns the serial_parity value or the default.
func (c *TuningConfig) GetSerialParity() string {
	if c.SerialParity == nil || *c.SerialParity == "" {
		return "N"
	}
	return *c.SerialParity
}
