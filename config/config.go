package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Credits      CreditsConfig      `mapstructure:"credits"`
	Ads          AdsConfig          `mapstructure:"ads"`
	Guest        GuestConfig        `mapstructure:"guest"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
}

type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Mode       string `mapstructure:"mode"`
	InstanceID string `mapstructure:"instance_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type AuthConfig struct {
	Provider string         `mapstructure:"provider"` // local, supabase
	Supabase SupabaseConfig `mapstructure:"supabase"`
}

type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

type GeminiConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int32   `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
}

// Timeout 单次请求超时
func (c GeminiConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type CreditsConfig struct {
	DailyAllowance int `mapstructure:"daily_allowance"`
	ReplyCost      int `mapstructure:"reply_cost"`
	ImageReplyCost int `mapstructure:"image_reply_cost"`
	BioCost        int `mapstructure:"bio_cost"`
}

type AdsConfig struct {
	InterstitialPlacement string `mapstructure:"interstitial_placement"`
	BannerPlacement       string `mapstructure:"banner_placement"`
	GraceSeconds          int    `mapstructure:"grace_seconds"`
	CooldownSeconds       int    `mapstructure:"cooldown_seconds"`
	DelayMillis           int    `mapstructure:"delay_millis"`
	AckTimeoutSeconds     int    `mapstructure:"ack_timeout_seconds"`
}

type GuestConfig struct {
	KeyPrefix string `mapstructure:"key_prefix"`
	TTLHours  int    `mapstructure:"ttl_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SubscriptionConfig struct {
	WebhookSecret string         `mapstructure:"webhook_secret"`
	Plans         map[string]int `mapstructure:"plans"` // plan -> 有效天数
}

func Load(configPath string) (*Config, error) {
	// .env 仅用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("jwt.expire_hours", 24*7)
	v.SetDefault("auth.provider", "local")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.temperature", 0.9)
	v.SetDefault("gemini.max_tokens", 1024)
	v.SetDefault("gemini.timeout_seconds", 30)
	v.SetDefault("gemini.max_attempts", 2)
	v.SetDefault("credits.daily_allowance", 5)
	v.SetDefault("credits.reply_cost", 1)
	v.SetDefault("credits.image_reply_cost", 2)
	v.SetDefault("credits.bio_cost", 1)
	v.SetDefault("ads.grace_seconds", 120)
	v.SetDefault("ads.cooldown_seconds", 180)
	v.SetDefault("ads.delay_millis", 4000)
	v.SetDefault("ads.ack_timeout_seconds", 15)
	v.SetDefault("guest.key_prefix", "rizz:guest:")
	v.SetDefault("guest.ttl_hours", 24*90)
	v.SetDefault("subscription.plans", map[string]int{"weekly": 7, "monthly": 30, "yearly": 365})
}

// Defaults 返回只包含默认值的配置，测试与工具命令使用
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
