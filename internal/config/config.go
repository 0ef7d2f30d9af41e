// Package config loads the gateway configuration from YAML files, a .env
// file and FIXGATE_ prefixed environment variables.
package config

// Config is the complete gateway configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	FIX     FIXConfig     `mapstructure:"fix" yaml:"fix"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Redis   RedisConfig   `mapstructure:"redis" yaml:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka" yaml:"kafka"`
	Journal JournalConfig `mapstructure:"journal" yaml:"journal"`
}

// LoggingConfig holds logger settings. Level may change on reload.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

// FIXConfig holds the broker connection settings.
type FIXConfig struct {
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password"`
	TargetSubID      string `mapstructure:"target_sub_id" yaml:"target_sub_id"`
	TradingSessionID string `mapstructure:"trading_session_id" yaml:"trading_session_id"`

	RequestIDCeiling uint32  `mapstructure:"request_id_ceiling" yaml:"request_id_ceiling" validate:"min=1"`
	SendRate         float64 `mapstructure:"send_rate" yaml:"send_rate" validate:"min=0"`
	SendBurst        int     `mapstructure:"send_burst" yaml:"send_burst" validate:"min=0"`

	// LogMessages routes raw inbound and outbound messages to the debug log.
	LogMessages bool `mapstructure:"log_messages" yaml:"log_messages"`

	Sessions []SessionConfig `mapstructure:"sessions" yaml:"sessions" validate:"required,min=1,dive"`
}

// SessionConfig describes one initiator session.
type SessionConfig struct {
	BeginString  string `mapstructure:"begin_string" yaml:"begin_string" validate:"required"`
	SenderCompID string `mapstructure:"sender_comp_id" yaml:"sender_comp_id" validate:"required"`
	TargetCompID string `mapstructure:"target_comp_id" yaml:"target_comp_id" validate:"required"`
	Host         string `mapstructure:"host" yaml:"host" validate:"required"`
	Port         int    `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	HeartBtInt   int    `mapstructure:"heartbeat" yaml:"heartbeat" validate:"min=1"`

	MarketData bool `mapstructure:"market_data_session" yaml:"market_data_session"`
	Order      bool `mapstructure:"order_session" yaml:"order_session"`

	// Extra is passed to the engine as additional session settings.
	Extra map[string]string `mapstructure:"extra" yaml:"extra"`
}

// APIConfig configures the monitoring HTTP API.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled" yaml:"enabled"`
	Addr           string   `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// RedisConfig configures the redis state mirror.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// KafkaConfig configures the kafka event export.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" yaml:"enabled"`
	Brokers []string `mapstructure:"brokers" yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" yaml:"topic" validate:"required_if=Enabled true"`
}

// JournalConfig configures the execution journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Driver  string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" validate:"required_if=Enabled true"`
}
