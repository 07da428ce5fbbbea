package app

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ScenarioPaths []string `validate:"min=1,dive,required"` // hcl files or directories

	LogFormat       string `validate:"oneof=text json"`
	LogLevel        string `validate:"oneof=debug info warn error"`
	HealthcheckPort int    `validate:"gte=0,lte=65535"`

	// Device selects where passes run: "cpu" or "cpu:N" for N workers.
	Device string
	// Workers is derived from Device by NewConfig; zero means GOMAXPROCS.
	Workers int `validate:"gte=0"`

	// CacheDir holds the persistent graph store. Empty keeps graphs in
	// memory for the lifetime of the App.
	CacheDir string
	// OutputDir is prepended to relative output paths of the scenario.
	OutputDir     string
	TraceExporter string `validate:"omitempty,oneof=none stdout"`
}

var validate = validator.New()

// NewConfig validates cfg and resolves its device.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ScenarioPaths) == 0 {
		return nil, fmt.Errorf("at least one scenario path is required")
	}
	workers, err := ParseDevice(cfg.Device)
	if err != nil {
		return nil, err
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ParseDevice returns the worker count selected by a device string. Only
// CPU devices exist; "cpu" (or "") leaves the choice to the runtime.
func ParseDevice(device string) (int, error) {
	name, count, hasCount := strings.Cut(strings.ToLower(device), ":")
	if name != "cpu" && name != "" {
		return 0, fmt.Errorf("unsupported device %q: only cpu is available", device)
	}
	if !hasCount {
		return 0, nil
	}
	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid device %q: worker count must be a positive integer", device)
	}
	return n, nil
}
