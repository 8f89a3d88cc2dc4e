package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"investtracker/pkg/tracker"
)

const (
	FileName      = "tracker.toml"
	DefaultDBName = "tracker.db"
)

// Config is the daemon configuration read from tracker.toml.
type Config struct {
	Server     ServerConfig      `toml:"server"`
	Logging    LoggingConfig     `toml:"logging"`
	HTTP       HTTPConfig        `toml:"http"`
	Portfolios []PortfolioConfig `toml:"portfolios"`

	// DataDir and DBPath are resolved after loading, never read from the file.
	DataDir string `toml:"-"`
	DBPath  string `toml:"-"`
	// Source is the file the config was read from, empty for defaults.
	Source string `toml:"-"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HTTPConfig tunes the market data clients. Durations are Go duration strings.
type HTTPConfig struct {
	Timeout       string `toml:"timeout"`
	FailThreshold int    `toml:"fail_threshold"`
	FailWindow    string `toml:"fail_window"`
	Cooldown      string `toml:"cooldown"`
	QuoteCacheTTL string `toml:"quote_cache_ttl"`
}

func (c HTTPConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

func (c HTTPConfig) FailWindowDuration() time.Duration {
	return parseDuration(c.FailWindow, 60*time.Second)
}

func (c HTTPConfig) CooldownDuration() time.Duration {
	return parseDuration(c.Cooldown, 120*time.Second)
}

func (c HTTPConfig) QuoteCacheTTLDuration() time.Duration {
	return parseDuration(c.QuoteCacheTTL, 30*time.Second)
}

// PortfolioConfig is one [[portfolios]] table.
type PortfolioConfig struct {
	ID             string `toml:"id"`
	Name           string `toml:"name"`
	BaseCurrency   string `toml:"base_currency"`
	Provider       string `toml:"market_data_provider"`
	APIKey         string `toml:"api_key"`
	UpdateInterval int    `toml:"update_interval"`
	ImportDir      string `toml:"import_dir"`
	DefaultBroker  string `toml:"default_broker"`
}

// Tracker converts the table into the engine's portfolio config.
func (p PortfolioConfig) Tracker() tracker.PortfolioConfig {
	provider, _ := tracker.ParseProvider(p.Provider)
	return tracker.PortfolioConfig{
		ID:             p.ID,
		Name:           p.Name,
		BaseCurrency:   strings.ToUpper(p.BaseCurrency),
		Provider:       provider,
		UpdateInterval: time.Duration(p.UpdateInterval) * time.Second,
		ImportDir:      p.ImportDir,
		DefaultBroker:  p.DefaultBroker,
	}
}

// Default returns a Config with one yahoo_public portfolio in EUR.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8000},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		HTTP: HTTPConfig{
			Timeout:       "10s",
			FailThreshold: 3,
			FailWindow:    "60s",
			Cooldown:      "120s",
			QuoteCacheTTL: "30s",
		},
		Portfolios: []PortfolioConfig{{
			ID:             "default",
			Name:           "Portfolio",
			BaseCurrency:   "EUR",
			Provider:       string(tracker.ProviderYahoo),
			UpdateInterval: int(tracker.MinUpdateInterval.Seconds()),
		}},
	}
}

var runtimeDataDir string

func IsMacOS() bool {
	return runtime.GOOS == "darwin"
}

func IsWindows() bool {
	return runtime.GOOS == "windows"
}

// SetRuntimeDataDir overrides every other data dir source for this process.
func SetRuntimeDataDir(dir string) {
	runtimeDataDir = dir
}

func appConfigDir() (string, error) {
	if IsMacOS() {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "InvestTracker"), nil
	}
	if IsWindows() {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "InvestTracker"), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "investtracker"), nil
	}
	return filepath.Join(configDir, "investtracker"), nil
}

// GetDataDir resolves and creates the data directory: runtime override,
// TRACKER_DATA_DIR, then the per-OS application directory.
func GetDataDir() (string, error) {
	dir := runtimeDataDir
	if dir == "" {
		dir = os.Getenv("TRACKER_DATA_DIR")
	}
	if dir == "" {
		d, err := appConfigDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetDBPath returns TRACKER_DB_PATH or tracker.db inside the data dir.
func GetDBPath() (string, error) {
	if envPath := os.Getenv("TRACKER_DB_PATH"); envPath != "" {
		return envPath, nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, DefaultDBName), nil
}

// Load reads .env, then the config file, then environment overrides, and
// validates the result. explicitPath wins over the data dir and the working
// directory; when no file exists the defaults are used.
func Load(explicitPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	dataDir, err := GetDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = dataDir

	path, err := findConfigFile(explicitPath, dataDir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.Source = path
	}

	applyEnvOverrides(cfg)

	dbPath, err := GetDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	cfg.DBPath = dbPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile(explicitPath, dataDir string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	candidates := []string{filepath.Join(dataDir, FileName)}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, FileName))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// A file that declares portfolios replaces the default one.
	cfg.Portfolios = nil
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if len(cfg.Portfolios) == 0 {
		cfg.Portfolios = Default().Portfolios
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRACKER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TRACKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRACKER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TRACKER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("TRACKER_ALPHAVANTAGE_KEY"); v != "" {
		for i := range cfg.Portfolios {
			if cfg.Portfolios[i].APIKey == "" {
				cfg.Portfolios[i].APIKey = v
			}
		}
	}
}

// Validate normalizes portfolio tables in place and rejects unusable ones.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if len(c.Portfolios) == 0 {
		return errors.New("at least one portfolio is required")
	}
	minInterval := int(tracker.MinUpdateInterval.Seconds())
	seen := map[string]struct{}{}
	for i := range c.Portfolios {
		p := &c.Portfolios[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return fmt.Errorf("portfolios[%d]: id is required", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("portfolio %q is defined twice", p.ID)
		}
		seen[p.ID] = struct{}{}

		p.BaseCurrency = strings.ToUpper(strings.TrimSpace(p.BaseCurrency))
		if p.BaseCurrency == "" {
			p.BaseCurrency = "EUR"
		}
		if !tracker.IsKnownCurrency(p.BaseCurrency) {
			return fmt.Errorf("portfolio %q: unknown base currency %q", p.ID, p.BaseCurrency)
		}
		if p.Provider == "" {
			p.Provider = string(tracker.ProviderYahoo)
		}
		provider, ok := tracker.ParseProvider(p.Provider)
		if !ok {
			return fmt.Errorf("portfolio %q: unknown market_data_provider %q", p.ID, p.Provider)
		}
		p.Provider = string(provider)
		if p.UpdateInterval < minInterval {
			p.UpdateInterval = minInterval
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
	return nil
}

// Address returns host:port for the HTTP listener.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Portfolio returns the table for id.
func (c *Config) Portfolio(id string) (PortfolioConfig, bool) {
	for _, p := range c.Portfolios {
		if p.ID == id {
			return p, true
		}
	}
	return PortfolioConfig{}, false
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
