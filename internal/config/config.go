package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envAPIURL  = "WAFRA_API_URL"
	envAnonKey = "WAFRA_ANON_KEY"
	envConfig  = "WAFRA_CONFIG"
)

// Config carries everything the client needs at startup. APIURL and AnonKey
// are mandatory; their absence is a fatal startup error.
type Config struct {
	APIURL  string `yaml:"api_url"`
	AnonKey string `yaml:"anon_key"`

	Timeouts Timeouts `yaml:"timeouts"`

	Sandbox struct {
		Addr string `yaml:"addr"`
	} `yaml:"sandbox"`

	Store struct {
		// Path of the local settings file. Defaults under the user config dir.
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// Timeouts are per-operation deadlines, expressed as Go durations in YAML.
type Timeouts struct {
	Restore        time.Duration `yaml:"restore"`
	Login          time.Duration `yaml:"login"`
	OAuth          time.Duration `yaml:"oauth"`
	Register       time.Duration `yaml:"register"`
	Logout         time.Duration `yaml:"logout"`
	Verify         time.Duration `yaml:"verify"`
	Resend         time.Duration `yaml:"resend"`
	OTP            time.Duration `yaml:"otp"`
	ProvisionDelay time.Duration `yaml:"provision_delay"`
	RegisterDelay  time.Duration `yaml:"register_delay"`
}

// Defaults mirrors the documented operation budgets.
func defaultTimeouts() Timeouts {
	return Timeouts{
		Restore:        8 * time.Second,
		Login:          15 * time.Second,
		OAuth:          30 * time.Second,
		Register:       30 * time.Second,
		Logout:         10 * time.Second,
		Verify:         15 * time.Second,
		Resend:         10 * time.Second,
		OTP:            15 * time.Second,
		ProvisionDelay: 3 * time.Second,
		RegisterDelay:  2 * time.Second,
	}
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables win over file values. A .env file in the working
// directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{Timeouts: defaultTimeouts()}

	path := strings.TrimSpace(os.Getenv(envConfig))
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := strings.TrimSpace(os.Getenv(envAPIURL)); v != "" {
		cfg.APIURL = v
	}
	if v := strings.TrimSpace(os.Getenv(envAnonKey)); v != "" {
		cfg.AnonKey = v
	}

	if cfg.Sandbox.Addr == "" {
		cfg.Sandbox.Addr = ":8090"
	}
	fillTimeoutDefaults(&cfg.Timeouts)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fillTimeoutDefaults(t *Timeouts) {
	def := defaultTimeouts()
	if t.Restore <= 0 {
		t.Restore = def.Restore
	}
	if t.Login <= 0 {
		t.Login = def.Login
	}
	if t.OAuth <= 0 {
		t.OAuth = def.OAuth
	}
	if t.Register <= 0 {
		t.Register = def.Register
	}
	if t.Logout <= 0 {
		t.Logout = def.Logout
	}
	if t.Verify <= 0 {
		t.Verify = def.Verify
	}
	if t.Resend <= 0 {
		t.Resend = def.Resend
	}
	if t.OTP <= 0 {
		t.OTP = def.OTP
	}
	if t.ProvisionDelay <= 0 {
		t.ProvisionDelay = def.ProvisionDelay
	}
	if t.RegisterDelay <= 0 {
		t.RegisterDelay = def.RegisterDelay
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return errors.New(envAPIURL + " is required")
	}
	if strings.TrimSpace(c.AnonKey) == "" {
		return errors.New(envAnonKey + " is required")
	}
	return nil
}
