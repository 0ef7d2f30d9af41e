package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override, e.g. FIXGATE_FIX_PASSWORD.
const EnvPrefix = "FIXGATE"

// ReloadCallback is called after a changed configuration file was loaded
// and validated.
type ReloadCallback func(oldConfig, newConfig *Config)

// Loader reads and validates the configuration and reloads it when the
// configuration file changes.
type Loader struct {
	mu        sync.RWMutex
	viper     *viper.Viper
	validator *validator.Validate
	logger    *zap.Logger
	config    *Config
	paths     []string
	callbacks []ReloadCallback
}

// NewLoader creates a loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		validator: validator.New(),
		logger:    logger.Named("config"),
	}
}

// SetLogger replaces the loader's logger, used once the configured logger
// has been built from the loaded configuration.
func (l *Loader) SetLogger(logger *zap.Logger) {
	l.mu.Lock()
	l.logger = logger.Named("config")
	l.mu.Unlock()
}

// Load reads the files in paths in order, later files overriding earlier
// ones. Missing files are skipped. A .env file in the working directory is
// loaded into the environment first.
func (l *Loader) Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("Failed to load .env file", zap.Error(err))
	}

	v, cfg, err := l.read(paths)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.viper = v
	l.config = cfg
	l.paths = paths
	l.mu.Unlock()

	l.logger.Info("Configuration loaded",
		zap.Strings("paths", paths),
		zap.Int("sessions", len(cfg.FIX.Sessions)))
	return cfg, nil
}

func (l *Loader) read(paths []string) (*viper.Viper, *Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			l.logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applySessionDefaults(&cfg)

	if err := l.validate(&cfg); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return v, &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("fix.username", "")
	v.SetDefault("fix.password", "")
	v.SetDefault("fix.target_sub_id", "")
	v.SetDefault("fix.trading_session_id", "FXCM")
	v.SetDefault("fix.request_id_ceiling", 65535)
	v.SetDefault("fix.send_rate", 0)
	v.SetDefault("fix.send_burst", 10)
	v.SetDefault("fix.log_messages", false)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.allowed_origins", []string{"*"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "fixgate")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "fixgate.events")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.dsn", "fixgate.db")
}

func applySessionDefaults(cfg *Config) {
	for i := range cfg.FIX.Sessions {
		s := &cfg.FIX.Sessions[i]
		if s.BeginString == "" {
			s.BeginString = "FIX.4.4"
		}
		if s.HeartBtInt == 0 {
			s.HeartBtInt = 30
		}
	}
}

func (l *Loader) validate(cfg *Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		return err
	}

	var md, ord bool
	for _, s := range cfg.FIX.Sessions {
		md = md || s.MarketData
		ord = ord || s.Order
	}
	if !md {
		return fmt.Errorf("no session has market_data_session set")
	}
	if !ord {
		return fmt.Errorf("no session has order_session set")
	}
	if cfg.FIX.SendRate > 0 && cfg.FIX.SendBurst == 0 {
		return fmt.Errorf("send_burst must be positive when send_rate is set")
	}
	return nil
}

// Current returns the configuration last loaded.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnReload registers cb to run after every successful reload.
func (l *Loader) OnReload(cb ReloadCallback) {
	l.mu.Lock()
	l.callbacks = append(l.callbacks, cb)
	l.mu.Unlock()
}

// Watch reloads the configuration whenever the last loaded file changes.
// Only settings read at use time, such as the log level, take effect
// without a restart.
func (l *Loader) Watch() {
	l.mu.RLock()
	v := l.viper
	l.mu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		l.logger.Debug("No configuration file to watch")
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("Configuration file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if err := l.reload(); err != nil {
			l.logger.Error("Configuration reload failed, keeping previous configuration", zap.Error(err))
		}
	})
	v.WatchConfig()
	l.logger.Info("Watching configuration", zap.String("file", v.ConfigFileUsed()))
}

func (l *Loader) reload() error {
	l.mu.RLock()
	paths := l.paths
	l.mu.RUnlock()

	_, cfg, err := l.read(paths)
	if err != nil {
		return err
	}

	l.mu.Lock()
	old := l.config
	l.config = cfg
	callbacks := append([]ReloadCallback(nil), l.callbacks...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, cfg)
	}
	return nil
}
