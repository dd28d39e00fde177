// Package config resolves the bot configuration from defaults, an optional
// YAML or JSON file, and command line overrides applied by the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid tags every configuration validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Click modes.
const (
	ModeTemplate    = "template"
	ModeCoordinates = "coordinates"
)

type Config struct {
	ClickMode     ClickMode     `yaml:"click_mode" json:"click_mode"`
	ClickSpeed    ClickSpeed    `yaml:"click_speed" json:"click_speed"`
	ImageMatching ImageMatching `yaml:"image_matching" json:"image_matching"`
	Automation    Automation    `yaml:"automation" json:"automation"`
	Coordinates   Coordinates   `yaml:"coordinates" json:"coordinates"`
	Paths         Paths         `yaml:"paths" json:"paths"`
	Cleanup       Cleanup       `yaml:"cleanup" json:"cleanup"`
	Device        Device        `yaml:"device" json:"device"`
	App           App           `yaml:"app" json:"app"`
	Logging       Logging       `yaml:"logging" json:"logging"`

	// Source records where the configuration came from ("defaults" or a
	// file path); informational only.
	Source string `yaml:"-" json:"-"`
}

type ClickMode struct {
	Mode string `yaml:"mode" json:"mode"`
}

type ClickSpeed struct {
	MinDelay Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay Duration `yaml:"max_delay" json:"max_delay"`
}

type ImageMatching struct {
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// Region restricts the search to "x,y,w,h" in frame pixels.
	Region string `yaml:"region,omitempty" json:"region,omitempty"`
	// ReferenceSize is the "WxH" resolution the template was captured at.
	// When set and the device frame differs, the template is rescaled once
	// by the frame/reference ratio before matching.
	ReferenceSize string `yaml:"reference_size,omitempty" json:"reference_size,omitempty"`
}

type Automation struct {
	ScanInterval Duration `yaml:"scan_interval" json:"scan_interval"`
	RandomOffset int      `yaml:"random_offset" json:"random_offset"`
}

type Coordinates struct {
	X int `yaml:"x" json:"x"`
	Y int `yaml:"y" json:"y"`
}

type Paths struct {
	TemplatePath  string `yaml:"template_path" json:"template_path"`
	TmpDirectory  string `yaml:"tmp_directory" json:"tmp_directory"`
	RunsDirectory string `yaml:"runs_directory" json:"runs_directory"`
}

type Cleanup struct {
	MaxAge Duration `yaml:"max_age" json:"max_age"`
}

type Device struct {
	Serial string `yaml:"serial,omitempty" json:"serial,omitempty"`
	Index  int    `yaml:"index" json:"index"`
	// ScreencapFileMode captures via a device-side file and adb pull
	// instead of streaming over exec-out.
	ScreencapFileMode bool `yaml:"screencap_file_mode" json:"screencap_file_mode"`
}

type App struct {
	Package   string   `yaml:"package,omitempty" json:"package,omitempty"`
	StartWait Duration `yaml:"start_wait" json:"start_wait"`
}

type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ClickMode:  ClickMode{Mode: ModeTemplate},
		ClickSpeed: ClickSpeed{MinDelay: Seconds(0.1), MaxDelay: Seconds(0.2)},
		ImageMatching: ImageMatching{
			Threshold: 0.8,
		},
		Automation: Automation{
			ScanInterval: Duration(30 * time.Second),
			RandomOffset: 2,
		},
		Coordinates: Coordinates{X: 0, Y: 0},
		Paths: Paths{
			TemplatePath:  filepath.Join("images", "default.png"),
			TmpDirectory:  "tmp",
			RunsDirectory: "runs",
		},
		Cleanup: Cleanup{MaxAge: Duration(24 * time.Hour)},
		Device:  Device{Index: 0},
		App:     App{StartWait: Duration(5 * time.Second)},
		Logging: Logging{Level: "info", Format: "text"},
		Source:  "defaults",
	}
}

// Load reads path on top of the defaults. JSON is decoded for files ending
// in .json, YAML otherwise.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Source = path
	return cfg, nil
}

// Validate checks the fields the automation loop relies on. It does not
// touch the filesystem; template readability is established when the
// template is actually loaded.
func (c Config) Validate() error {
	switch c.ClickMode.Mode {
	case ModeTemplate, ModeCoordinates:
	default:
		return fmt.Errorf("%w: click_mode.mode %q (want %q or %q)",
			ErrInvalid, c.ClickMode.Mode, ModeTemplate, ModeCoordinates)
	}

	minD, maxD := c.ClickSpeed.MinDelay.Std(), c.ClickSpeed.MaxDelay.Std()
	if minD <= 0 {
		return fmt.Errorf("%w: click_speed.min_delay %v must be positive", ErrInvalid, minD)
	}
	if maxD < minD {
		return fmt.Errorf("%w: click_speed.max_delay %v below min_delay %v", ErrInvalid, maxD, minD)
	}

	if t := c.ImageMatching.Threshold; t < 0 || t > 1 {
		return fmt.Errorf("%w: image_matching.threshold %v outside [0,1]", ErrInvalid, t)
	}
	if _, err := c.Region(); err != nil {
		return err
	}
	if _, err := c.ReferenceSize(); err != nil {
		return err
	}

	if c.Automation.ScanInterval < 0 {
		return fmt.Errorf("%w: automation.scan_interval must not be negative", ErrInvalid)
	}
	if c.Automation.RandomOffset < 0 {
		return fmt.Errorf("%w: automation.random_offset must not be negative", ErrInvalid)
	}

	switch c.ClickMode.Mode {
	case ModeCoordinates:
		if c.Coordinates.X < 0 || c.Coordinates.Y < 0 {
			return fmt.Errorf("%w: coordinates (%d,%d) must not be negative",
				ErrInvalid, c.Coordinates.X, c.Coordinates.Y)
		}
	case ModeTemplate:
		if c.Paths.TemplatePath == "" {
			return fmt.Errorf("%w: paths.template_path required in template mode", ErrInvalid)
		}
	}

	if c.Device.Index < 0 {
		return fmt.Errorf("%w: device.index must not be negative", ErrInvalid)
	}
	return nil
}

// Region parses image_matching.region ("x,y,w,h"). The zero rectangle means
// the whole frame.
func (c Config) Region() (image.Rectangle, error) {
	s := strings.TrimSpace(c.ImageMatching.Region)
	if s == "" {
		return image.Rectangle{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: image_matching.region %q (want \"x,y,w,h\")", ErrInvalid, s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("%w: image_matching.region %q: %v", ErrInvalid, s, err)
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("%w: image_matching.region %q needs positive w,h", ErrInvalid, s)
	}
	return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), nil
}

// ReferenceSize parses image_matching.reference_size ("WxH"). The zero point
// means no rescaling.
func (c Config) ReferenceSize() (image.Point, error) {
	s := strings.TrimSpace(c.ImageMatching.ReferenceSize)
	if s == "" {
		return image.Point{}, nil
	}
	parts := strings.SplitN(strings.ToLower(s), "x", 2)
	if len(parts) != 2 {
		return image.Point{}, fmt.Errorf("%w: image_matching.reference_size %q (want \"WxH\")", ErrInvalid, s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return image.Point{}, fmt.Errorf("%w: image_matching.reference_size %q", ErrInvalid, s)
	}
	return image.Pt(w, h), nil
}
