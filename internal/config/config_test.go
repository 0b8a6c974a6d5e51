package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	conf, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", conf.DatabaseConfig.Driver)
	assert.Equal(t, "data/bot.db", conf.DatabaseConfig.Path)
	assert.Equal(t, 20, conf.RelayConfig.MaxContextMessages)
	assert.Equal(t, 4000, conf.RelayConfig.MaxMessageLength)
	assert.Equal(t, 300*time.Second, conf.RelayConfig.ModelCacheTTL())
	assert.Equal(t, time.Second, conf.RelayConfig.RetryBaseDelay())
	assert.Equal(t, 3, conf.RelayConfig.MaxRetries)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[aiConfig.chatModel]
provider = " OpenAI "
apiKey = "from-file"
model = "gpt-4o"

[relayConfig]
maxContextMessages = 8
maxMessageLength = -1
`)
	t.Setenv("API_KEY", "from-env")
	t.Setenv("ALLOWED_USERS", "11,22")
	t.Setenv("JWT_KEY", "secret")
	t.Setenv("MAX_RETRIES", "5")

	conf, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openai", conf.AIConfig.ChatModel.Provider)
	assert.Equal(t, "from-env", conf.AIConfig.ChatModel.APIKey)
	assert.Equal(t, "gpt-4o", conf.AIConfig.ChatModel.Model)
	assert.Equal(t, 8, conf.RelayConfig.MaxContextMessages)
	assert.Equal(t, 4000, conf.RelayConfig.MaxMessageLength)
	assert.Equal(t, 5, conf.RelayConfig.MaxRetries)
	assert.Equal(t, []int64{11, 22}, conf.RelayConfig.AllowedUsers)
	require.NoError(t, conf.Validate())
}

func TestValidate(t *testing.T) {
	conf := Default()
	assert.Error(t, conf.Validate())

	conf.AIConfig.ChatModel.APIKey = "k"
	assert.NoError(t, conf.Validate())

	conf.DatabaseConfig.Driver = "postgres"
	assert.Error(t, conf.Validate())

	conf.DatabaseConfig.Driver = "sqlite"
	conf.AIConfig.ChatModel.Model = ""
	assert.Error(t, conf.Validate())
}

func TestValidate_RequiresJWTOutsideLoopback(t *testing.T) {
	conf := Default()
	conf.AIConfig.ChatModel.APIKey = "k"
	assert.Equal(t, "127.0.0.1", conf.MainConfig.Host)
	require.NoError(t, conf.Validate())

	for _, host := range []string{"0.0.0.0", "", "10.0.0.5", "::"} {
		conf.MainConfig.Host = host
		assert.Error(t, conf.Validate(), host)
	}
	for _, host := range []string{"localhost", "::1", "127.0.0.2"} {
		conf.MainConfig.Host = host
		assert.NoError(t, conf.Validate(), host)
	}

	conf.MainConfig.Host = "127.0.0.1"
	conf.RelayConfig.AllowedUsers = []int64{42}
	assert.Error(t, conf.Validate())

	conf.JwtConfig.Key = "secret"
	conf.MainConfig.Host = "0.0.0.0"
	assert.NoError(t, conf.Validate())
}

func TestIsUserAllowed(t *testing.T) {
	open := RelayConfig{}
	assert.True(t, open.IsUserAllowed(123))

	closed := RelayConfig{AllowedUsers: []int64{1, 2}}
	assert.True(t, closed.IsUserAllowed(2))
	assert.False(t, closed.IsUserAllowed(3))
}
