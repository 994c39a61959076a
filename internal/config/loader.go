package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
	"github.com/melisync/melisync/internal/errors"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading and hot-reloading
type Loader struct {
	path       string
	allowEmpty bool
	mu         sync.RWMutex
	config     *Config
	onChange   func(*Config)
	onError    func(error)
}

// NewLoader creates a new configuration loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// AllowMissing makes Load fall back to defaults when the file does not exist.
func (l *Loader) AllowMissing() *Loader {
	l.allowEmpty = true
	return l
}

// Path returns the watched config file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, &errors.ErrFileRead{Path: l.path, Err: err}
		}
		if !l.allowEmpty {
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		}
		content = nil
	}

	config, err := Parse(substituteEnvVars(content))
	if err != nil {
		return nil, err
	}

	l.config = config
	return config, nil
}

// Reload forces a reload of the configuration
func (l *Loader) Reload() (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(config)
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// SetOnError sets a callback for reload failures seen by the watcher.
func (l *Loader) SetOnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// Watch reloads the configuration whenever the file is written, created or
// renamed into place. The parent directory is watched so editors that replace
// the file atomically are picked up. The watcher stops when ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Clean(l.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					if _, err := l.Reload(); err != nil {
						l.reportError(err)
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.reportError(err)
			}
		}
	}()

	return nil
}

func (l *Loader) reportError(err error) {
	l.mu.RLock()
	onError := l.onError
	l.mu.RUnlock()
	if onError != nil {
		onError(err)
	}
}

// LoadFromEnv loads configuration using path from environment variable or default.
// A missing default file is not an error: the service runs on defaults and env.
func LoadFromEnv() (*Config, *Loader, error) {
	path := os.Getenv("MELISYNC_CONFIG_PATH")
	loader := NewLoader(path)
	if path == "" {
		loader = NewLoader("config.yaml").AllowMissing()
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// Parse parses configuration from byte slice
func Parse(data []byte) (*Config, error) {
	var config Config

	// Apply defaults before parsing
	applyDefaults(&config)

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return &config, nil
}

// envOverrides are the plain environment variables accepted on top of YAML.
type envOverrides struct {
	SyncIntervalMinutes int    `envconfig:"SYNC_INTERVAL_MINUTES"`
	SupabaseURL         string `envconfig:"SUPABASE_URL"`
	SupabaseServiceKey  string `envconfig:"SUPABASE_SERVICE_KEY"`
	LogLevel            string `envconfig:"LOG_LEVEL"`
	Port                int    `envconfig:"PORT"`
	APIKey              string `envconfig:"MELISYNC_API_KEY"`
}

func applyEnvOverrides(c *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if env.SyncIntervalMinutes < 0 {
		return fmt.Errorf("SYNC_INTERVAL_MINUTES cannot be negative")
	}
	if env.SyncIntervalMinutes > 0 {
		c.Sync.Interval = minutes(env.SyncIntervalMinutes)
	}
	if env.SupabaseURL != "" {
		c.Ledger.URL = env.SupabaseURL
	}
	if env.SupabaseServiceKey != "" {
		c.Ledger.ServiceKey = env.SupabaseServiceKey
	}
	if env.LogLevel != "" {
		c.Server.LogLevel = env.LogLevel
	}
	if env.Port > 0 {
		c.Server.HTTPPort = env.Port
	}
	if env.APIKey != "" {
		c.API.Auth.Enabled = true
		c.API.Auth.APIKeys = append(c.API.Auth.APIKeys, env.APIKey)
	}
	return nil
}

// Dump renders the configuration back to YAML with secrets masked.
func Dump(c *Config) ([]byte, error) {
	masked := *c
	masked.Ledger.ServiceKey = mask(c.Ledger.ServiceKey)
	masked.Telegram.BotToken = mask(c.Telegram.BotToken)
	masked.API.Auth.APIKeys = nil
	for _, k := range c.API.Auth.APIKeys {
		masked.API.Auth.APIKeys = append(masked.API.Auth.APIKeys, mask(k))
	}
	masked.Accounts = make([]AccountConfig, len(c.Accounts))
	for i, a := range c.Accounts {
		a.SecretKey = mask(a.SecretKey)
		a.RefreshToken = mask(a.RefreshToken)
		masked.Accounts[i] = a
	}
	return yaml.Marshal(&masked)
}

func substituteEnvVars(content []byte) []byte {
	return []byte(os.ExpandEnv(string(content)))
}
