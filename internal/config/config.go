package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("adconnect version %s, commit %s, built at %s", version, commit, date)
}

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Flow    FlowConfig    `mapstructure:"flow"`
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
}

// BackendConfig describes the analytics backend that holds the OAuth
// client secrets and proxies the ad platform APIs. Client identifiers and
// redirect URIs live entirely on the backend, never in this process.
type BackendConfig struct {
	BaseURL  string            `mapstructure:"base_url"`
	LocalURL string            `mapstructure:"local_url"`
	UseLocal bool              `mapstructure:"use_local"`
	Timeout  string            `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// URL returns the effective backend base URL.
func (b *BackendConfig) URL() string {
	if b.UseLocal && b.LocalURL != "" {
		return b.LocalURL
	}
	return b.BaseURL
}

// RequestTimeout parses the configured timeout, falling back to 30s.
func (b *BackendConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(b.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// FlowConfig tunes the browser authorization flow. PollInterval is a
// liveness/latency trade-off, not a correctness one; Timeout is the hard
// ceiling after which an unanswered flow is abandoned.
type FlowConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PortRangeFrom int           `mapstructure:"port_range_from"`
	PortRangeTo   int           `mapstructure:"port_range_to"`
	StateDir      string        `mapstructure:"state_dir"`
	Browser       string        `mapstructure:"browser"`
}

type StorageConfig struct {
	TokenDir string `mapstructure:"token_dir"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// InitFlags initializes command line flags (without parsing)
func InitFlags() {
	pflag.String("backend-url", "", "Base URL of the analytics backend")
	pflag.Bool("local", false, "Target the local development backend")
	// Note: no pflag.Parse() here as it's called in main.go
}

func Load() (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix("ADCONNECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/adconnect")
	if dir, err := os.UserConfigDir(); err == nil {
		viper.AddConfigPath(filepath.Join(dir, "adconnect"))
	}

	if err := viper.ReadInConfig(); err != nil {
		// A config file is optional; env and flags can carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if backendURL := viper.GetString("backend-url"); backendURL != "" {
		config.Backend.BaseURL = backendURL
	}
	if viper.GetBool("local") {
		config.Backend.UseLocal = true
	}

	if config.Backend.URL() == "" {
		return nil, fmt.Errorf("backend base URL is required, please adjust the config or pass --backend-url or ADCONNECT_BACKEND_BASE_URL environment variable")
	}

	if config.Flow.PortRangeFrom > config.Flow.PortRangeTo {
		return nil, fmt.Errorf("flow port range is inverted: %d-%d", config.Flow.PortRangeFrom, config.Flow.PortRangeTo)
	}

	return &config, nil
}

func setDefaults() {
	// An empty default registers the key so the env override is seen
	viper.SetDefault("backend.base_url", "")
	viper.SetDefault("backend.local_url", "http://localhost:3001")
	viper.SetDefault("backend.timeout", "30s")
	viper.SetDefault("flow.poll_interval", time.Second)
	viper.SetDefault("flow.timeout", 5*time.Minute)
	viper.SetDefault("flow.port_range_from", 8710)
	viper.SetDefault("flow.port_range_to", 8720)
	viper.SetDefault("flow.state_dir", defaultStateDir())
	viper.SetDefault("storage.token_dir", defaultTokenDir())
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

func defaultStateDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "adconnect")
	}
	return filepath.Join(os.TempDir(), "adconnect")
}

func defaultTokenDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "adconnect", "tokens")
	}
	return filepath.Join(os.TempDir(), "adconnect", "tokens")
}
