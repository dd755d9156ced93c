package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"sinout-engine/common/config"

	"gopkg.in/yaml.v3"
)

// Config 引擎服务配置
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`

	// 检测数据订阅
	Feed struct {
		TopicPrefix string `yaml:"topic_prefix"` // 如 "sinout/detections/"，订阅时追加 "+"
		QueueSize   int    `yaml:"queue_size"`   // 每个对象管道的队列长度
	} `yaml:"feed"`

	// 报警评估配置
	Alert struct {
		CooldownSeconds        int    `yaml:"cooldown_seconds"`         // 冷却窗口（秒），默认 60
		CooldownKeyPrefix      string `yaml:"cooldown_key_prefix"`      // 冷却状态键前缀，如 "sinout:cooldown:"
		SnapshotTTLSeconds     int    `yaml:"snapshot_ttl_seconds"`     // 规则快照缓存时长（秒）
		SnapshotTimeoutSeconds int    `yaml:"snapshot_timeout_seconds"` // 规则拉取超时（秒）
		ChangeChannel          string `yaml:"change_channel"`           // 规则变更通知频道
		Stream                 string `yaml:"stream"`                   // 报警推送 stream
		WebhookURL             string `yaml:"webhook_url"`              // 可选的报警 webhook
	} `yaml:"alert"`

	// 历史写入重试
	Append struct {
		MaxAttempts   int `yaml:"max_attempts"`   // 最多尝试次数，默认 3
		BackoffMillis int `yaml:"backoff_millis"` // 首次退避（毫秒），之后指数递增
	} `yaml:"append"`

	HTTP struct {
		Addr string `yaml:"addr"` // 仪表盘查询接口监听地址
	} `yaml:"http"`

	Timezone string `yaml:"timezone"` // 天边界所用时区，空值用主机时区

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 加载配置：环境变量优先，CONFIG_FILE 指定的 YAML 文件可作底
func Load() (*Config, error) {
	cfg := &Config{}

	// 默认值
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "sinout"
	cfg.Database.SSLMode = "disable"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "sinout-engine"
	cfg.MQTT.QoS = 1

	cfg.Feed.TopicPrefix = "sinout/detections/"
	cfg.Feed.QueueSize = 64

	cfg.Alert.CooldownSeconds = 60
	cfg.Alert.CooldownKeyPrefix = "sinout:cooldown:"
	cfg.Alert.SnapshotTTLSeconds = 30
	cfg.Alert.SnapshotTimeoutSeconds = 3
	cfg.Alert.ChangeChannel = "sinout:rules:changed"
	cfg.Alert.Stream = "sinout:alerts"

	cfg.Append.MaxAttempts = 3
	cfg.Append.BackoffMillis = 100

	cfg.HTTP.Addr = ":8080"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	// YAML 文件作底（字段覆盖默认值）
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// 环境变量最终覆盖
	cfg.Database.LoadFromEnv("DB")
	cfg.Redis.LoadFromEnv("REDIS")
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Feed.TopicPrefix = getEnv("FEED_TOPIC_PREFIX", cfg.Feed.TopicPrefix)
	cfg.Feed.QueueSize = getEnvInt("FEED_QUEUE_SIZE", cfg.Feed.QueueSize)

	cfg.Alert.CooldownSeconds = getEnvInt("ALERT_COOLDOWN_SECONDS", cfg.Alert.CooldownSeconds)
	cfg.Alert.CooldownKeyPrefix = getEnv("ALERT_COOLDOWN_PREFIX", cfg.Alert.CooldownKeyPrefix)
	cfg.Alert.SnapshotTTLSeconds = getEnvInt("ALERT_SNAPSHOT_TTL_SECONDS", cfg.Alert.SnapshotTTLSeconds)
	cfg.Alert.SnapshotTimeoutSeconds = getEnvInt("ALERT_SNAPSHOT_TIMEOUT_SECONDS", cfg.Alert.SnapshotTimeoutSeconds)
	cfg.Alert.ChangeChannel = getEnv("ALERT_CHANGE_CHANNEL", cfg.Alert.ChangeChannel)
	cfg.Alert.Stream = getEnv("ALERT_STREAM", cfg.Alert.Stream)
	cfg.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", cfg.Alert.WebhookURL)

	cfg.Append.MaxAttempts = getEnvInt("APPEND_MAX_ATTEMPTS", cfg.Append.MaxAttempts)
	cfg.Append.BackoffMillis = getEnvInt("APPEND_BACKOFF_MILLIS", cfg.Append.BackoffMillis)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

// CooldownWindow 冷却窗口时长
func (c *Config) CooldownWindow() time.Duration {
	return time.Duration(c.Alert.CooldownSeconds) * time.Second
}

// SnapshotTTL 规则快照缓存时长
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Alert.SnapshotTTLSeconds) * time.Second
}

// SnapshotTimeout 规则拉取超时
func (c *Config) SnapshotTimeout() time.Duration {
	return time.Duration(c.Alert.SnapshotTimeoutSeconds) * time.Second
}

// Location 天边界所用时区
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
