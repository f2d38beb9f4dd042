// Package config loads the ruler configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/ruler/internal/core/observability/log"
)

const (
	SquareHead      = "square"
	SquareInterface = "aardvark-ruler-square@1"
)

// Vec3 is an [x, y, z] triple in meters.
type Vec3 [3]float64

// Config is the whole gadget configuration. FrameRate sets the frame delta
// when the host does not supply one.
type Config struct {
	LogLevel  string         `json:"log_level" yaml:"log_level"`
	FrameRate int            `json:"frame_rate" yaml:"frame_rate"`
	Models    Models         `json:"models" yaml:"models"`
	Tool      ToolConfig     `json:"tool" yaml:"tool"`
	Heads     []HeadConfig   `json:"heads" yaml:"heads"`
	Hostlink  HostlinkConfig `json:"hostlink" yaml:"hostlink"`
}

type Models struct {
	Square string `json:"square" yaml:"square"`
	Cone   string `json:"cone" yaml:"cone"`
}

type ToolConfig struct {
	GrabRadius  float64 `json:"grab_radius" yaml:"grab_radius"`
	HandleScale float64 `json:"handle_scale" yaml:"handle_scale"`
	// BaseOffset places the base anchor relative to the tool origin.
	BaseOffset Vec3 `json:"base_offset" yaml:"base_offset"`
	// HeadsRotateX tilts the frame the heads are laid out in.
	HeadsRotateX float64 `json:"heads_rotate_x" yaml:"heads_rotate_x"`
}

type HeadConfig struct {
	Name            string  `json:"name" yaml:"name"`
	Interface       string  `json:"interface" yaml:"interface"`
	Offset          Vec3    `json:"offset" yaml:"offset"`
	GrabRadius      float64 `json:"grab_radius" yaml:"grab_radius"`
	IndicatorOffset Vec3    `json:"indicator_offset" yaml:"indicator_offset"`
	ModelScale      float64 `json:"model_scale" yaml:"model_scale"`
}

type HostlinkConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Path         string        `json:"path" yaml:"path"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Default returns the stock gadget: one square head locked to the base anchor.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		FrameRate: 90,
		Models: Models{
			Square: "models/square_ruler.glb",
			Cone:   "models/unit_cone.glb",
		},
		Tool: ToolConfig{
			GrabRadius:   0.015,
			HandleScale:  0.3,
			BaseOffset:   Vec3{0, 0.10, 0},
			HeadsRotateX: 90,
		},
		Heads: []HeadConfig{{
			Name:            SquareHead,
			Interface:       SquareInterface,
			Offset:          Vec3{0, 0, -0.09},
			GrabRadius:      0.03,
			IndicatorOffset: Vec3{0, 0.10, 0},
			ModelScale:      0.3,
		}},
		Hostlink: HostlinkConfig{
			Addr:         "127.0.0.1:23842",
			Path:         "/gadget",
			WriteTimeout: 2 * time.Second,
		},
	}
}

// Load reads YAML from r over the defaults. A heads list in the input
// replaces the default heads entirely.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Level parses LogLevel.
func (c *Config) Level() log.Level {
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// FrameDelta is the duration of one frame at FrameRate.
func (c *Config) FrameDelta() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

// Head returns the head config with the given name.
func (c *Config) Head(name string) (HeadConfig, bool) {
	for _, h := range c.Heads {
		if h.Name == name {
			return h, true
		}
	}
	return HeadConfig{}, false
}

func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate %d must be positive", c.FrameRate)
	}
	if c.Models.Square == "" || c.Models.Cone == "" {
		return errors.New("models: square and cone are required")
	}
	if c.Tool.GrabRadius <= 0 {
		return errors.New("tool.grab_radius must be positive")
	}
	if len(c.Heads) == 0 {
		return errors.New("at least one head is required")
	}
	names := make(map[string]struct{}, len(c.Heads))
	ifaces := make(map[string]struct{}, len(c.Heads))
	for i, h := range c.Heads {
		if h.Name == "" {
			return fmt.Errorf("heads[%d]: name is required", i)
		}
		if h.Interface == "" {
			return fmt.Errorf("heads[%d] %q: interface is required", i, h.Name)
		}
		if h.GrabRadius <= 0 {
			return fmt.Errorf("heads[%d] %q: grab_radius must be positive", i, h.Name)
		}
		if _, dup := names[h.Name]; dup {
			return fmt.Errorf("heads[%d]: duplicate name %q", i, h.Name)
		}
		if _, dup := ifaces[h.Interface]; dup {
			return fmt.Errorf("heads[%d] %q: interface %q already used", i, h.Name, h.Interface)
		}
		names[h.Name] = struct{}{}
		ifaces[h.Interface] = struct{}{}
	}
	if c.Hostlink.Path == "" || c.Hostlink.Path[0] != '/' {
		return fmt.Errorf("hostlink.path %q must start with /", c.Hostlink.Path)
	}
	return nil
}
