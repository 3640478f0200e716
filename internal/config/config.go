package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SyncConfig 同步编排配置
type SyncConfig struct {
	ErrorThreshold int           // 连续失败多少次后标记凭证无效
	Workers        int           // sync_all 设备级并发数
	RequestDelay   time.Duration // 同一厂家相邻日期请求间隔（Garmin 限流）
	EventStream    string        // 同步事件输出流
}

// VendorConfig 厂家 API 配置
type VendorConfig struct {
	Garmin struct {
		BaseURL   string // 国际区 API 地址
		BaseURLCN string // 中国区 API 地址
		Timeout   time.Duration
	}
	Huawei struct {
		ClientID     string
		ClientSecret string
		AuthURL      string
		TokenURL     string
		DataURL      string
		Timeout      time.Duration
	}
}

// Config healthhub 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Sync     SyncConfig
	Vendor   VendorConfig

	Server struct {
		Addr string
	}

	Secrets struct {
		// 凭证加密密钥的来源（长期应用密钥，派生后常驻进程）
		AppSecret string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthhub")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Sync.ErrorThreshold = getEnvInt("SYNC_ERROR_THRESHOLD", 3)
	cfg.Sync.Workers = getEnvInt("SYNC_WORKERS", 3)
	// 厂家未公开限流契约，800ms 为实测安全间隔，可按需调整
	cfg.Sync.RequestDelay = time.Duration(getEnvInt("SYNC_REQUEST_DELAY_MS", 800)) * time.Millisecond
	cfg.Sync.EventStream = getEnv("SYNC_EVENT_STREAM", "healthhub:events:daily-sync")

	cfg.Vendor.Garmin.BaseURL = getEnv("GARMIN_BASE_URL", "https://connect.garmin.com")
	cfg.Vendor.Garmin.BaseURLCN = getEnv("GARMIN_BASE_URL_CN", "https://connect.garmin.cn")
	cfg.Vendor.Garmin.Timeout = time.Duration(getEnvInt("GARMIN_TIMEOUT_SECONDS", 30)) * time.Second

	cfg.Vendor.Huawei.ClientID = getEnv("HUAWEI_CLIENT_ID", "")
	cfg.Vendor.Huawei.ClientSecret = getEnv("HUAWEI_CLIENT_SECRET", "")
	cfg.Vendor.Huawei.AuthURL = getEnv("HUAWEI_AUTH_URL", "https://oauth-login.cloud.huawei.com/oauth2/v3/authorize")
	cfg.Vendor.Huawei.TokenURL = getEnv("HUAWEI_TOKEN_URL", "https://oauth-login.cloud.huawei.com/oauth2/v3/token")
	cfg.Vendor.Huawei.DataURL = getEnv("HUAWEI_DATA_URL", "https://health-api.cloud.huawei.com/healthkit/v1")
	cfg.Vendor.Huawei.Timeout = time.Duration(getEnvInt("HUAWEI_TIMEOUT_SECONDS", 15)) * time.Second

	cfg.Server.Addr = getEnv("SERVER_ADDR", ":8086")

	cfg.Secrets.AppSecret = getEnv("CREDENTIAL_APP_SECRET", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
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
