package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// refsPerSession 單一會話同時持有的參照上限
const refsPerSession = 3

// Config 應用配置
type Config struct {
	App         AppConfig        `mapstructure:"app"`
	Server      ServerConfig     `mapstructure:"server"`
	Form        FormConfig       `mapstructure:"form"`
	Compressor  CompressorConfig `mapstructure:"compressor"`
	Queue       QueueConfig      `mapstructure:"queue"`
	BlobStore   BlobStoreConfig  `mapstructure:"blobstore"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Session     SessionConfig    `mapstructure:"session"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Image       ImageConfig      `mapstructure:"image"`
	DedupWindow time.Duration    `mapstructure:"dedup_window"`
	LogLevel    string           `mapstructure:"log_level"`
	LogDir      string           `mapstructure:"log_dir"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// FormConfig 表單控制器設定
type FormConfig struct {
	DefaultPercentage  int    `mapstructure:"default_percentage"`
	PlaceholderURL     string `mapstructure:"placeholder_url"`
	DownloadFilename   string `mapstructure:"download_filename"`
	DownloadMediaType  string `mapstructure:"download_media_type"`
	ResetOnUpload      bool   `mapstructure:"reset_on_upload"`
	MaxTargetDimension int    `mapstructure:"max_target_dimension"`
	BlobURLPrefix      string `mapstructure:"blob_url_prefix"`
}

// CompressorConfig 壓縮函式設定
type CompressorConfig struct {
	Driver              string       `mapstructure:"driver"`
	DefaultMaxDimension int          `mapstructure:"default_max_dimension"`
	UseWebWorker        bool         `mapstructure:"use_web_worker"`
	MaxIteration        int          `mapstructure:"max_iteration"`
	Remote              RemoteConfig `mapstructure:"remote"`
}

// RemoteConfig 遠端壓縮服務設定
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig 壓縮隊列設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// BlobStoreConfig 顯示參照儲存設定
type BlobStoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	MaxEntries      int           `mapstructure:"max_entries"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SessionConfig 會話設定
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	CookieName      string        `mapstructure:"cookie_name"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ImageConfig 圖片配置
type ImageConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	MaxPixels    int64 `mapstructure:"max_pixels"`
}

// LoadConfig 載入設定，.env 不存在時只使用環境變數與預設值
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	v.BindEnv("server.port", "PORT")
	v.BindEnv("compressor.driver", "COMPRESSOR_DRIVER")
	v.BindEnv("compressor.remote.base_url", "COMPRESSOR_REMOTE_URL")
	v.BindEnv("compressor.remote.api_key", "COMPRESSOR_REMOTE_API_KEY")
	v.BindEnv("blobstore.driver", "BLOBSTORE_DRIVER")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("dedup_window", "DEDUP_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	fmt.Println("Loading configuration",
		"compressor_driver:", v.GetString("compressor.driver"),
		"blobstore_driver:", v.GetString("blobstore.driver"),
		"remote_api_key:", maskAPIKey(v.GetString("compressor.remote.api_key")),
	)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default 回傳只含預設值的設定
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("config defaults do not unmarshal: %v", err))
	}
	return &config
}

// maskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "image-compressor")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 25<<20)

	// 表單設定
	v.SetDefault("form.default_percentage", 100)
	v.SetDefault("form.placeholder_url", "https://testersdock.com/wp-content/uploads/2017/09/file-upload-1280x640.png")
	v.SetDefault("form.download_filename", "compressed_image.jpg")
	v.SetDefault("form.download_media_type", "image/jpeg")
	v.SetDefault("form.reset_on_upload", true)
	v.SetDefault("form.max_target_dimension", 16384)
	v.SetDefault("form.blob_url_prefix", "/api/v1/blobs/")

	// 壓縮設定
	v.SetDefault("compressor.driver", "local")
	v.SetDefault("compressor.default_max_dimension", 800)
	v.SetDefault("compressor.use_web_worker", true)
	v.SetDefault("compressor.max_iteration", 10)
	v.SetDefault("compressor.remote.timeout", "60s")

	// 隊列設定
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_size", 100)

	// 參照儲存設定
	v.SetDefault("blobstore.driver", "memory")
	v.SetDefault("blobstore.max_entries", 2000)
	v.SetDefault("blobstore.ttl", "1h")
	v.SetDefault("blobstore.cleanup_interval", "5m")

	// Redis 設定
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "imgc:blob:")

	// 會話設定
	v.SetDefault("session.ttl", "30m")
	v.SetDefault("session.cleanup_interval", "1m")
	v.SetDefault("session.max_sessions", 500)
	v.SetDefault("session.cookie_name", "imgc_session")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	// 圖片設定
	v.SetDefault("image.max_size_bytes", 20*1024*1024) // 20MB
	v.SetDefault("image.max_pixels", 64*1024*1024)     // 約 64MP，RGBA 約 256MB

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_dir", "logs")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	if p := config.Form.DefaultPercentage; p < 1 || p > 100 {
		return fmt.Errorf("invalid default percentage: %d", p)
	}

	switch config.Compressor.Driver {
	case "local":
	case "remote":
		if config.Compressor.Remote.BaseURL == "" {
			return fmt.Errorf("remote compressor requires base url")
		}
	default:
		return fmt.Errorf("unknown compressor driver: %s", config.Compressor.Driver)
	}
	if config.Compressor.DefaultMaxDimension <= 0 {
		return fmt.Errorf("invalid default max dimension")
	}
	if config.Compressor.MaxIteration <= 0 {
		return fmt.Errorf("invalid max iteration")
	}

	switch config.BlobStore.Driver {
	case "memory":
		if config.BlobStore.MaxEntries <= 0 {
			return fmt.Errorf("invalid blobstore max entries")
		}
		if config.BlobStore.CleanupInterval <= 0 {
			return fmt.Errorf("invalid blobstore cleanup interval")
		}
		// 每個會話同時最多持有三個參照（原圖、舊結果、新結果）
		if need := refsPerSession * config.Session.MaxSessions; config.BlobStore.MaxEntries < need {
			return fmt.Errorf("blobstore max entries %d below %d required by %d sessions",
				config.BlobStore.MaxEntries, need, config.Session.MaxSessions)
		}
	case "redis":
		if config.Redis.Addr == "" {
			return fmt.Errorf("redis blobstore requires addr")
		}
	default:
		return fmt.Errorf("unknown blobstore driver: %s", config.BlobStore.Driver)
	}
	if config.BlobStore.TTL <= 0 {
		return fmt.Errorf("invalid blobstore ttl")
	}
	if config.BlobStore.TTL < config.Session.TTL {
		return fmt.Errorf("blobstore ttl %s shorter than session ttl %s", config.BlobStore.TTL, config.Session.TTL)
	}

	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	if config.Session.TTL <= 0 || config.Session.CleanupInterval <= 0 {
		return fmt.Errorf("invalid session ttl or cleanup interval")
	}
	if config.Session.MaxSessions <= 0 {
		return fmt.Errorf("invalid session max sessions")
	}

	if config.Image.MaxSizeBytes <= 0 {
		return fmt.Errorf("invalid image max size")
	}
	if config.Image.MaxPixels <= 0 {
		return fmt.Errorf("invalid image max pixels")
	}

	return nil
}
