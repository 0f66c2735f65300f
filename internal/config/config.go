package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix 环境变量前缀，例如 MICROBLOG_REDIS_ADDR
const envPrefix = "MICROBLOG"

type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	NATS       NATSConfig       `yaml:"nats" mapstructure:"nats"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Auth       AuthConfig       `yaml:"auth" mapstructure:"auth"`
	Revocation RevocationConfig `yaml:"revocation" mapstructure:"revocation"`
	Worker     WorkerConfig     `yaml:"worker" mapstructure:"worker"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	NodeID          int64         `yaml:"node_id" mapstructure:"node_id"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SendBufferSize  int           `yaml:"send_buffer_size" mapstructure:"send_buffer_size"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type RedisConfig struct {
	Addr      string        `yaml:"addr" mapstructure:"addr"`
	Password  string        `yaml:"password" mapstructure:"password"`
	DB        int           `yaml:"db" mapstructure:"db"`
	PoolSize  int           `yaml:"pool_size" mapstructure:"pool_size"`
	OpTimeout time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

type NATSConfig struct {
	URL           string        `yaml:"url" mapstructure:"url"`
	MaxReconnects int           `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" mapstructure:"reconnect_wait"`
}

// Enabled 未配置 URL 时不启用通知订阅
func (c NATSConfig) Enabled() bool {
	return c.URL != ""
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	Name            string        `yaml:"name" mapstructure:"name"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Enabled 未配置主机时审计日志只写入 slog
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN 构建 PostgreSQL 连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
	)
}

type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret" mapstructure:"token_secret"`
	TokenExpire time.Duration `yaml:"token_expire" mapstructure:"token_expire"`
}

type RevocationConfig struct {
	Capacity     int           `yaml:"capacity" mapstructure:"capacity"`
	TTL          time.Duration `yaml:"ttl" mapstructure:"ttl"`
	SyncInterval time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`
	Policy       string        `yaml:"policy" mapstructure:"policy"`
}

type WorkerConfig struct {
	Workers   int `yaml:"workers" mapstructure:"workers"`
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// setDefaults 默认值与原后端配置保持一致
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.node_id", 1)
	v.SetDefault("server.send_buffer_size", 256)
	v.SetDefault("server.max_message_size", 8192)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("server.allowed_origins", []string{})

	// 空默认值让这些键也能被环境变量覆盖
	v.SetDefault("redis.password", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.name", "microblog")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("auth.token_secret", "")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.op_timeout", 2*time.Second)

	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("auth.token_expire", 24*time.Hour)

	v.SetDefault("revocation.capacity", 10000)
	v.SetDefault("revocation.ttl", 24*time.Hour)
	v.SetDefault("revocation.sync_interval", 60*time.Minute)
	v.SetDefault("revocation.policy", "reset")

	v.SetDefault("worker.workers", 4)
	v.SetDefault("worker.queue_size", 1024)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load 从指定路径加载配置
// 先加载当前目录下的 .env（可选），环境变量优先于配置文件
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("config: auth.token_secret is required")
	}
	if c.Revocation.Capacity <= 0 {
		return fmt.Errorf("config: revocation.capacity must be positive, got %d", c.Revocation.Capacity)
	}
	if c.Revocation.TTL <= 0 {
		return fmt.Errorf("config: revocation.ttl must be positive, got %s", c.Revocation.TTL)
	}
	if c.Revocation.SyncInterval <= 0 {
		return fmt.Errorf("config: revocation.sync_interval must be positive, got %s", c.Revocation.SyncInterval)
	}
	if c.Redis.OpTimeout <= 0 {
		return fmt.Errorf("config: redis.op_timeout must be positive, got %s", c.Redis.OpTimeout)
	}
	return nil
}

const redactedValue = "******"

// Redacted 以 YAML 输出生效配置，密钥类字段被遮蔽
func (c *Config) Redacted() ([]byte, error) {
	masked := *c
	if masked.Auth.TokenSecret != "" {
		masked.Auth.TokenSecret = redactedValue
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = redactedValue
	}
	if masked.Database.Password != "" {
		masked.Database.Password = redactedValue
	}
	return yaml.Marshal(&masked)
}
