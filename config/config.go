package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	// 数据库配置
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration
	DBAcquireTimeout  time.Duration

	// 服务器配置
	Port            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	// 认证配置
	JWTSecret    string
	JWTExpiresIn time.Duration

	// 事件发布配置 (留空则不启用)
	AMQPURL         string
	AMQPExchange    string
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	// 通知与导入配置
	NotifyWebhook string
	PublicURL     string
	Timezone      string

	// 出勤窗口自动关闭间隔, 0 表示禁用
	WindowSweepInterval time.Duration

	// 其他配置
	Environment string
	LogLevel    string
}

func Load() *Config {
	return &Config{
		// 数据库配置
		DatabaseURL:       getEnv("DATABASE_URL", "postgres://localhost:5432/team_presence?sslmode=disable"),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		DBAcquireTimeout:  getEnvDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),

		// 服务器配置
		Port:            getEnv("PORT", "8080"),
		AllowedOrigins:  getList("CORS_ORIGINS", "*"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		// 认证配置
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),

		// 事件发布配置
		AMQPURL:         getEnv("AMQP_URL", ""),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "team-presence.events"),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", ""),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "team-presence/matches"),

		// 通知与导入配置
		NotifyWebhook: getEnv("NOTIFY_WEBHOOK", ""),
		PublicURL:     getEnv("PUBLIC_URL", ""),
		Timezone:      getEnv("TEAM_TIMEZONE", "UTC"),

		WindowSweepInterval: getEnvOptionalDuration("WINDOW_SWEEP_INTERVAL", 15*time.Minute),

		// 其他配置
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// Validate 检查启动所必需的配置
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TEAM_TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.DBMaxIdleConns > c.DBMaxOpenConns {
		c.DBMaxIdleConns = c.DBMaxOpenConns
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var result int
	fmt.Sscanf(value, "%d", &result)
	if result <= 0 {
		return defaultValue
	}
	return result
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// 支持 "7d" 这样的天数写法
	if days, ok := strings.CutSuffix(value, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

// getEnvOptionalDuration "0" 或 "off" 表示禁用
func getEnvOptionalDuration(key string, defaultValue time.Duration) time.Duration {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "0", "off", "false":
		return 0
	}
	return getEnvDuration(key, defaultValue)
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, v := range strings.Split(getEnv(key, defaultValue), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
