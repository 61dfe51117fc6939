package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/ambient-viewer/pkg/algorithm"
	"github.com/abworrall/ambient-viewer/pkg/emath"
	"github.com/abworrall/ambient-viewer/pkg/imageio"
)

const DefaultConfigPath = "~/.ambient-viewer.yaml"

var ErrInvalidConfig = errors.New("app: invalid config")

type Config struct {
	Verbosity int

	Algorithm        string  // see algorithm.Names
	ContinuousUpdate bool    // follow the light sensor while an image is shown
	UseColorInfo     bool    // feed the camera calibration to the algorithm
	ManualMode       bool    // ignore sensor and camera; use ManualParameter
	ManualParameter  float64 // only used in ManualMode
	ScreenMaxSize    int     // images are downsampled to about this many pixels across
	AcceptedTypes    []string

	LightSensor LightSensorConfig
	Camera      CameraConfig
	Output      OutputConfig
}

type LightSensorConfig struct {
	Driver       string        // "sim", "iio" or "none"
	IIORoot      string        // sysfs root for the iio driver
	PollInterval time.Duration // for the iio driver
	SimReadings  []float64     // lux values the sim sensor plays back
	SimInterval  time.Duration
}

type CameraConfig struct {
	Driver          string // "sim" or "none"
	ID              string
	CaptureInterval time.Duration
	SimGains        emath.Vec3 // what the sim camera's auto white balance settles on
}

type OutputConfig struct {
	Filename    string // PNG of the displayed image
	Annotate    bool   // caption the PNG with the parameters
	HDRFilename string // optional linear RGBE dump of the working image
}

func NewConfig() Config {
	return Config{
		Algorithm:        "ambient",
		ContinuousUpdate: true,
		UseColorInfo:     true,
		ScreenMaxSize:    2048,
		AcceptedTypes:    []string{imageio.MimeJPEG},
		LightSensor: LightSensorConfig{
			Driver:       "sim",
			PollInterval: 250 * time.Millisecond,
			SimReadings:  []float64{50, 120, 400, 1500},
			SimInterval:  500 * time.Millisecond,
		},
		Camera: CameraConfig{
			Driver:          "sim",
			ID:              "0",
			CaptureInterval: time.Second,
			SimGains:        emath.Vec3{1.2, 1.0, 0.9},
		},
		Output: OutputConfig{
			Filename: "displayed.png",
		},
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

// LoadConfig reads YAML over the defaults. A leading ~ is expanded.
func LoadConfig(path string) (Config, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("config path %s: %v", path, err)
	}
	contents, err := os.ReadFile(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %w", expanded, err)
	}
	c, err := newConfigFromYaml(contents)
	if err != nil {
		return Config{}, fmt.Errorf("config parse %s: %v", expanded, err)
	}
	return c, nil
}

// LoadDefaultConfig loads DefaultConfigPath if it exists, else the defaults.
func LoadDefaultConfig() (Config, error) {
	c, err := LoadConfig(DefaultConfigPath)
	if errors.Is(err, os.ErrNotExist) {
		return NewConfig(), nil
	}
	return c, err
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

func (c Config) Validate() error {
	a, err := algorithm.New(c.Algorithm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.ManualMode {
		m := a.Meta()
		if c.ManualParameter < m.ParameterMin() || c.ManualParameter > m.ParameterMax() {
			return fmt.Errorf("%w: manual parameter %g outside [%g, %g]", ErrInvalidConfig,
				c.ManualParameter, m.ParameterMin(), m.ParameterMax())
		}
	}
	if c.ScreenMaxSize < 0 {
		return fmt.Errorf("%w: negative screen size %d", ErrInvalidConfig, c.ScreenMaxSize)
	}
	switch c.LightSensor.Driver {
	case "sim", "iio", "none":
	default:
		return fmt.Errorf("%w: light sensor driver %q, wanted sim, iio or none", ErrInvalidConfig, c.LightSensor.Driver)
	}
	switch c.Camera.Driver {
	case "sim", "none":
	default:
		return fmt.Errorf("%w: camera driver %q, wanted sim or none", ErrInvalidConfig, c.Camera.Driver)
	}
	for _, g := range c.Camera.SimGains {
		if g < 0 {
			return fmt.Errorf("%w: negative camera gain in %s", ErrInvalidConfig, c.Camera.SimGains)
		}
	}
	return nil
}
