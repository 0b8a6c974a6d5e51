package config

import (
	"errors"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultConfigPath = "configs/config_local.toml"

type MainConfig struct {
	AppName string `toml:"appName" env:"APP_NAME"`
	Host    string `toml:"host" env:"HOST"`
	Port    int    `toml:"port" env:"PORT"`
	// 开启后对非 TLS 请求做 HTTPS 重定向
	ForceTLS bool `toml:"forceTLS" env:"FORCE_TLS"`
}

// DatabaseConfig 存储配置：driver 为 sqlite（默认）或 mysql
type DatabaseConfig struct {
	Driver       string `toml:"driver" env:"DB_DRIVER"`
	Path         string `toml:"path" env:"DB_PATH"`
	Host         string `toml:"host" env:"DB_HOST"`
	Port         int    `toml:"port" env:"DB_PORT"`
	User         string `toml:"user" env:"DB_USER"`
	Password     string `toml:"password" env:"DB_PASSWORD"`
	DatabaseName string `toml:"databaseName" env:"DB_NAME"`
}

type LogConfig struct {
	LogPath string `toml:"logPath" env:"LOG_PATH"`
	Level   string `toml:"level" env:"LOG_LEVEL"`
}

type JwtConfig struct {
	Key         string `toml:"key" env:"JWT_KEY"`
	ExpireHours int    `toml:"expireHours"`
	Issuer      string `toml:"issuer"`
}

type RedisConfig struct {
	Host         string `toml:"host" env:"REDIS_HOST"`
	Port         int    `toml:"port" env:"REDIS_PORT"`
	Password     string `toml:"password" env:"REDIS_PASSWORD"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"poolSize"`
	MinIdleConns int    `toml:"minIdleConns"`
}

type AIChatModelConfig struct {
	Provider        string `toml:"provider" env:"API_PROVIDER"`
	APIKey          string `toml:"apiKey" env:"API_KEY"`
	AccessKey       string `toml:"accessKey"`
	SecretKey       string `toml:"secretKey"`
	BaseURL         string `toml:"baseURL" env:"API_BASE_URL"`
	Region          string `toml:"region"`
	Model           string `toml:"model" env:"DEFAULT_MODEL"`
	TimeoutSeconds  int    `toml:"timeoutSeconds"`
	RetryTimes      int    `toml:"retryTimes"`
	ByAzure         bool   `toml:"byAzure"`
	AzureAPIVersion string `toml:"azureApiVersion"`
}

type AIConfig struct {
	ChatModel AIChatModelConfig `toml:"chatModel"`
	// ImageModel 用户没有会话模型时 /image 使用的模型
	ImageModel string `toml:"imageModel" env:"IMAGE_MODEL"`
}

// RelayConfig 对话引擎参数
type RelayConfig struct {
	AllowedUsers           []int64 `toml:"allowedUsers" env:"ALLOWED_USERS" envSeparator:","`
	MaxContextMessages     int     `toml:"maxContextMessages" env:"MAX_CONTEXT_MESSAGES"`
	MaxMessageLength       int     `toml:"maxMessageLength" env:"MAX_MESSAGE_LENGTH"`
	ModelCacheTTLSeconds   int     `toml:"modelCacheTTLSeconds" env:"MODEL_CACHE_TTL"`
	ModelsPerPage          int     `toml:"modelsPerPage"`
	MaxRetries             int     `toml:"maxRetries" env:"MAX_RETRIES"`
	RetryBaseDelayMs       int     `toml:"retryBaseDelayMs"`
	UpstreamTimeoutSeconds int     `toml:"upstreamTimeoutSeconds"`
	HistoryLimit           int     `toml:"historyLimit"`
	ReplayLimit            int     `toml:"replayLimit"`
	TitleMaxTokens         int     `toml:"titleMaxTokens"`
	MaxImages              int     `toml:"maxImages"`
	ErrorTextLimit         int     `toml:"errorTextLimit"`
}

type Config struct {
	MainConfig     `toml:"mainConfig"`
	DatabaseConfig `toml:"databaseConfig"`
	JwtConfig      `toml:"jwtConfig"`
	AIConfig       `toml:"aiConfig"`
	LogConfig      `toml:"logConfig"`
	RedisConfig    `toml:"redisConfig"`
	RelayConfig    `toml:"relayConfig"`
}

var (
	config *Config
	once   sync.Once
)

// Default 返回带默认值的配置
func Default() *Config {
	return &Config{
		MainConfig: MainConfig{
			AppName: "ChatRelay",
			Host:    "127.0.0.1",
			Port:    8000,
		},
		DatabaseConfig: DatabaseConfig{
			Driver: "sqlite",
			Path:   "data/bot.db",
		},
		AIConfig: AIConfig{
			ChatModel: AIChatModelConfig{
				Provider: "openai",
				Model:    "gpt-3.5-turbo",
			},
			ImageModel: "dall-e-3",
		},
		RelayConfig: RelayConfig{
			MaxContextMessages:     20,
			MaxMessageLength:       4000,
			ModelCacheTTLSeconds:   300,
			ModelsPerPage:          5,
			MaxRetries:             3,
			RetryBaseDelayMs:       1000,
			UpstreamTimeoutSeconds: 120,
			HistoryLimit:           10,
			ReplayLimit:            10,
			TitleMaxTokens:         30,
			MaxImages:              3,
			ErrorTextLimit:         500,
		},
	}
}

// Load 依次应用：默认值 -> toml 文件 -> .env -> 环境变量
func Load(path string) (*Config, error) {
	conf := Default()

	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, conf); err != nil {
			return nil, err
		}
	} else {
		log.Printf("配置文件 %s 不存在，使用默认设置与环境变量", path)
	}

	// .env 不存在时忽略
	_ = godotenv.Load()

	if err := env.Parse(conf); err != nil {
		return nil, err
	}
	conf.normalize()
	return conf, nil
}

// GetConfig 进程级配置（首次调用时加载）
func GetConfig() *Config {
	once.Do(func() {
		c, err := Load(os.Getenv("CHATRELAY_CONFIG"))
		if err != nil {
			log.Printf("加载配置文件失败: %v, 使用默认设置", err)
			c = Default()
		}
		config = c
	})
	return config
}

func (c *Config) normalize() {
	c.AIConfig.ChatModel.Provider = strings.ToLower(strings.TrimSpace(c.AIConfig.ChatModel.Provider))
	c.AIConfig.ChatModel.Model = strings.TrimSpace(c.AIConfig.ChatModel.Model)
	c.DatabaseConfig.Driver = strings.ToLower(strings.TrimSpace(c.DatabaseConfig.Driver))

	d := Default().RelayConfig
	r := &c.RelayConfig
	if r.MaxContextMessages <= 0 {
		r.MaxContextMessages = d.MaxContextMessages
	}
	if r.MaxMessageLength <= 0 {
		r.MaxMessageLength = d.MaxMessageLength
	}
	if r.ModelCacheTTLSeconds <= 0 {
		r.ModelCacheTTLSeconds = d.ModelCacheTTLSeconds
	}
	if r.ModelsPerPage <= 0 {
		r.ModelsPerPage = d.ModelsPerPage
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = d.MaxRetries
	}
	if r.RetryBaseDelayMs <= 0 {
		r.RetryBaseDelayMs = d.RetryBaseDelayMs
	}
	if r.UpstreamTimeoutSeconds <= 0 {
		r.UpstreamTimeoutSeconds = d.UpstreamTimeoutSeconds
	}
	if r.HistoryLimit <= 0 {
		r.HistoryLimit = d.HistoryLimit
	}
	if r.ReplayLimit <= 0 {
		r.ReplayLimit = d.ReplayLimit
	}
	if r.TitleMaxTokens <= 0 {
		r.TitleMaxTokens = d.TitleMaxTokens
	}
	if r.MaxImages <= 0 {
		r.MaxImages = d.MaxImages
	}
	if r.ErrorTextLimit <= 0 {
		r.ErrorTextLimit = d.ErrorTextLimit
	}
}

// Validate 校验必要配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AIConfig.ChatModel.APIKey) == "" && c.AIConfig.ChatModel.Provider != "ark" {
		return errors.New("API_KEY is required")
	}
	if c.AIConfig.ChatModel.Model == "" {
		return errors.New("DEFAULT_MODEL is required")
	}
	switch c.DatabaseConfig.Driver {
	case "sqlite", "mysql":
	default:
		return errors.New("unsupported database driver: " + c.DatabaseConfig.Driver)
	}
	// 没有 JWT 时 user_id 由调用方自报，只能在本机回环地址上这样部署
	if strings.TrimSpace(c.JwtConfig.Key) == "" {
		if len(c.RelayConfig.AllowedUsers) > 0 {
			return errors.New("JWT_KEY is required when ALLOWED_USERS is set")
		}
		if !isLoopback(c.MainConfig.Host) {
			return errors.New("JWT_KEY is required when listening on " + c.MainConfig.Host)
		}
	}
	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsUserAllowed 白名单为空时放行所有用户
func (r RelayConfig) IsUserAllowed(userID int64) bool {
	if len(r.AllowedUsers) == 0 {
		return true
	}
	for _, id := range r.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func (r RelayConfig) ModelCacheTTL() time.Duration {
	return time.Duration(r.ModelCacheTTLSeconds) * time.Second
}

func (r RelayConfig) RetryBaseDelay() time.Duration {
	return time.Duration(r.RetryBaseDelayMs) * time.Millisecond
}

func (r RelayConfig) UpstreamTimeout() time.Duration {
	return time.Duration(r.UpstreamTimeoutSeconds) * time.Second
}
