package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// ProviderConfig 定义外部邮件服务商的接入配置
type ProviderConfig struct {
	BaseURL     string        // 服务商 API 根地址，必填
	APIKey      string        // 静态 API 密钥，必填，全进程共享
	RetryCount  int           // 瞬时错误的最大重试次数，默认 3
	RetryDelay  time.Duration // 重试基础延迟（线性递增），默认 2s
	Timeout     time.Duration // 单次请求超时，默认 10s
	AuthBackoff time.Duration // 凭证被拒后暂停全部服务商调用的时长，默认 10m
}

// RelayConfig 定义轮询与投递的核心业务配置
type RelayConfig struct {
	PollInterval     time.Duration // 定时轮询的间隔，默认 30s
	LivenessInterval time.Duration // 可达性巡检的间隔，默认 1h
	DeliveryPacing   time.Duration // 对同一订阅者连续投递之间的间隔，默认 1s
	SeenHighWater    int           // 去重集合的高水位，超过后触发淘汰，默认 150
	SeenLowWater     int           // 淘汰后的低水位，默认 75
}

// AdminConfig 定义管理员身份配置
type AdminConfig struct {
	Token string   // 管理接口的操作员令牌，必填
	IDs   []string // 始终放行的管理员订阅者 ID 列表
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Provider ProviderConfig // 邮件服务商配置
	Relay    RelayConfig    // 轮询与投递配置
	Admin    AdminConfig    // 管理员配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: INBOXRELAY_
// 例如: INBOXRELAY_PROVIDER_API_KEY, INBOXRELAY_ADMIN_TOKEN
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 必填项缺失或取值非法时返回错误，进程应拒绝启动
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("inboxrelay")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("provider.base_url", "")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.retry_count", 3)
	viper.SetDefault("provider.retry_delay", "2s")
	viper.SetDefault("provider.timeout", "10s")
	viper.SetDefault("provider.auth_backoff", "10m")
	viper.SetDefault("relay.poll_interval", "30s")
	viper.SetDefault("relay.liveness_interval", "1h")
	viper.SetDefault("relay.delivery_pacing", "1s")
	viper.SetDefault("relay.seen_high_water", 150)
	viper.SetDefault("relay.seen_low_water", 75)
	viper.SetDefault("admin.token", "")
	viper.SetDefault("admin.ids", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	baseURL := strings.TrimRight(viper.GetString("provider.base_url"), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("provider.base_url is required, set INBOXRELAY_PROVIDER_BASE_URL")
	}

	apiKey := viper.GetString("provider.api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("provider.api_key is required, set INBOXRELAY_PROVIDER_API_KEY")
	}

	adminToken := viper.GetString("admin.token")
	if adminToken == "" {
		return nil, fmt.Errorf("admin.token is required, set INBOXRELAY_ADMIN_TOKEN")
	}

	retryCount := viper.GetInt("provider.retry_count")
	if retryCount <= 0 {
		retryCount = 3
	}

	retryDelay, err := time.ParseDuration(viper.GetString("provider.retry_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.retry_delay: %w", err)
	}

	timeout, err := time.ParseDuration(viper.GetString("provider.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.timeout: %w", err)
	}

	authBackoff, err := time.ParseDuration(viper.GetString("provider.auth_backoff"))
	if err != nil {
		authBackoff = 10 * time.Minute
	}

	pollInterval, err := time.ParseDuration(viper.GetString("relay.poll_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid relay.poll_interval: %w", err)
	}

	livenessInterval, err := time.ParseDuration(viper.GetString("relay.liveness_interval"))
	if err != nil {
		livenessInterval = time.Hour
	}

	deliveryPacing, err := time.ParseDuration(viper.GetString("relay.delivery_pacing"))
	if err != nil {
		deliveryPacing = time.Second
	}

	highWater := viper.GetInt("relay.seen_high_water")
	lowWater := viper.GetInt("relay.seen_low_water")
	if highWater <= 0 {
		highWater = 150
	}
	if lowWater <= 0 || lowWater >= highWater {
		lowWater = highWater / 2
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Provider: ProviderConfig{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			RetryCount:  retryCount,
			RetryDelay:  retryDelay,
			Timeout:     timeout,
			AuthBackoff: authBackoff,
		},
		Relay: RelayConfig{
			PollInterval:     pollInterval,
			LivenessInterval: livenessInterval,
			DeliveryPacing:   deliveryPacing,
			SeenHighWater:    highWater,
			SeenLowWater:     lowWater,
		},
		Admin: AdminConfig{
			Token: adminToken,
			IDs:   parseList(viper.GetString("admin.ids")),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（从子目录运行时）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
