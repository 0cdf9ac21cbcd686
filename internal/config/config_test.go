package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"INBOXRELAY_PROVIDER_BASE_URL",
		"INBOXRELAY_PROVIDER_API_KEY",
		"INBOXRELAY_PROVIDER_RETRY_COUNT",
		"INBOXRELAY_PROVIDER_RETRY_DELAY",
		"INBOXRELAY_PROVIDER_TIMEOUT",
		"INBOXRELAY_PROVIDER_AUTH_BACKOFF",
		"INBOXRELAY_RELAY_POLL_INTERVAL",
		"INBOXRELAY_RELAY_LIVENESS_INTERVAL",
		"INBOXRELAY_RELAY_DELIVERY_PACING",
		"INBOXRELAY_RELAY_SEEN_HIGH_WATER",
		"INBOXRELAY_RELAY_SEEN_LOW_WATER",
		"INBOXRELAY_ADMIN_TOKEN",
		"INBOXRELAY_ADMIN_IDS",
		"INBOXRELAY_SERVER_HOST",
		"INBOXRELAY_SERVER_PORT",
		"INBOXRELAY_LOG_LEVEL",
		"INBOXRELAY_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	setRequired := func() {
		os.Setenv("INBOXRELAY_PROVIDER_BASE_URL", "https://mail.example.com/api")
		os.Setenv("INBOXRELAY_PROVIDER_API_KEY", "test-provider-key")
		os.Setenv("INBOXRELAY_ADMIN_TOKEN", "test-operator-token")
	}

	t.Run("加载默认配置成功", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		setRequired()

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "https://mail.example.com/api", cfg.Provider.BaseURL)
		assert.Equal(t, "test-provider-key", cfg.Provider.APIKey)
		assert.Equal(t, 3, cfg.Provider.RetryCount)
		assert.Equal(t, 2*time.Second, cfg.Provider.RetryDelay)
		assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, 10*time.Minute, cfg.Provider.AuthBackoff)
		assert.Equal(t, 30*time.Second, cfg.Relay.PollInterval)
		assert.Equal(t, time.Hour, cfg.Relay.LivenessInterval)
		assert.Equal(t, time.Second, cfg.Relay.DeliveryPacing)
		assert.Equal(t, 150, cfg.Relay.SeenHighWater)
		assert.Equal(t, 75, cfg.Relay.SeenLowWater)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		setRequired()
		os.Setenv("INBOXRELAY_SERVER_HOST", "127.0.0.1")
		os.Setenv("INBOXRELAY_SERVER_PORT", "9090")
		os.Setenv("INBOXRELAY_PROVIDER_RETRY_COUNT", "5")
		os.Setenv("INBOXRELAY_PROVIDER_RETRY_DELAY", "500ms")
		os.Setenv("INBOXRELAY_PROVIDER_TIMEOUT", "3s")
		os.Setenv("INBOXRELAY_RELAY_POLL_INTERVAL", "15s")
		os.Setenv("INBOXRELAY_RELAY_SEEN_HIGH_WATER", "200")
		os.Setenv("INBOXRELAY_RELAY_SEEN_LOW_WATER", "100")
		os.Setenv("INBOXRELAY_ADMIN_IDS", "42,4242")
		os.Setenv("INBOXRELAY_LOG_LEVEL", "debug")
		os.Setenv("INBOXRELAY_LOG_DEVELOPMENT", "true")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证自定义值
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5, cfg.Provider.RetryCount)
		assert.Equal(t, 500*time.Millisecond, cfg.Provider.RetryDelay)
		assert.Equal(t, 3*time.Second, cfg.Provider.Timeout)
		assert.Equal(t, 15*time.Second, cfg.Relay.PollInterval)
		assert.Equal(t, 200, cfg.Relay.SeenHighWater)
		assert.Equal(t, 100, cfg.Relay.SeenLowWater)
		assert.Equal(t, []string{"42", "4242"}, cfg.Admin.IDs)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.True(t, cfg.Log.Development)
	})

	t.Run("缺少服务商地址失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("INBOXRELAY_PROVIDER_API_KEY", "test-provider-key")
		os.Setenv("INBOXRELAY_ADMIN_TOKEN", "test-operator-token")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "provider.base_url is required")
	})

	t.Run("缺少API密钥失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("INBOXRELAY_PROVIDER_BASE_URL", "https://mail.example.com/api")
		os.Setenv("INBOXRELAY_ADMIN_TOKEN", "test-operator-token")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "provider.api_key is required")
	})

	t.Run("缺少管理员令牌失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		os.Setenv("INBOXRELAY_PROVIDER_BASE_URL", "https://mail.example.com/api")
		os.Setenv("INBOXRELAY_PROVIDER_API_KEY", "test-provider-key")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "admin.token is required")
	})

	t.Run("无效的轮询间隔失败", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		setRequired()
		os.Setenv("INBOXRELAY_RELAY_POLL_INTERVAL", "invalid-duration")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid relay.poll_interval")
	})

	t.Run("低水位不低于高水位时回退默认", func(t *testing.T) {
		for _, key := range envKeys {
			os.Unsetenv(key)
		}
		setRequired()
		os.Setenv("INBOXRELAY_RELAY_SEEN_HIGH_WATER", "100")
		os.Setenv("INBOXRELAY_RELAY_SEEN_LOW_WATER", "100")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, 100, cfg.Relay.SeenHighWater)
		assert.Equal(t, 50, cfg.Relay.SeenLowWater)
	})
}

func TestParseList(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "单个项目",
			input:    "item1",
			expected: []string{"item1"},
		},
		{
			name:     "多个项目",
			input:    "item1,item2,item3",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "带空格的项目",
			input:    " item1 , item2 , item3 ",
			expected: []string{"item1", "item2", "item3"},
		},
		{
			name:     "空字符串",
			input:    "",
			expected: []string{},
		},
		{
			name:     "只有逗号",
			input:    ",,,",
			expected: []string{},
		},
		{
			name:     "混合空值",
			input:    "item1,,item2,",
			expected: []string{"item1", "item2"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := parseList(tc.input)
			assert.Equal(t, tc.expected, result)
		})
	}
}
