package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")
	return configPath
}

// TestLoadConfigKeepsDefaultsForMissingSections 验证YAML中未出现的字段保持默认值
func TestLoadConfigKeepsDefaultsForMissingSections(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("TIKA_SERVER_URL", "")

	configPath := writeTempConfig(t, `
server:
  address: ":9090"
tika:
  server_url: "http://tika:9998"
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, ":9090", config.Server.Address)
	assert.Equal(t, 10, config.Server.MaxRequestBodyMB)
	assert.Equal(t, "http://tika:9998", config.Tika.ServerURL)
	assert.Equal(t, "eng", config.Tika.OCRLanguage)
	assert.Equal(t, 3*1024*1024, config.Extraction.OCRMaxBytes)
	assert.Equal(t, "4s", config.Extraction.LayoutTimeout)
	assert.Equal(t, "llama-3.3-70b-versatile", config.LLM.Model)
	assert.False(t, config.LLM.Configured(), "未提供API Key时LLM应视为未配置")
}

// TestLoadConfigEnvOverrides 验证环境变量覆盖文件中的值
func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_test")
	t.Setenv("LLM_MODEL", "llama-3.1-8b-instant")
	t.Setenv("TIKA_SERVER_URL", "http://ocr:9998")

	configPath := writeTempConfig(t, `
llm:
  api_key: "from-file"
  model: "from-file-model"
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "gsk_test", config.LLM.APIKey)
	assert.Equal(t, "llama-3.1-8b-instant", config.LLM.Model)
	assert.Equal(t, "http://ocr:9998", config.Tika.ServerURL)
	assert.True(t, config.LLM.Configured())
}

// TestLoadConfigZeroValuesFallBack 验证显式写成零值的字段回退到默认值
func TestLoadConfigZeroValuesFallBack(t *testing.T) {
	configPath := writeTempConfig(t, `
server:
  address: ""
  max_request_body_mb: 0
extraction:
  ocr_max_bytes: 0
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ":8080", config.Server.Address)
	assert.Equal(t, 10, config.Server.MaxRequestBodyMB)
	assert.Equal(t, 3*1024*1024, config.Extraction.OCRMaxBytes)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig("")
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	configPath := writeTempConfig(t, "server: [unclosed")
	_, err = LoadConfig(configPath)
	assert.Error(t, err, "非法YAML应返回错误")
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 4*time.Second, GetDuration("4s", time.Second))
	assert.Equal(t, time.Second, GetDuration("", time.Second))
	assert.Equal(t, time.Second, GetDuration("not-a-duration", time.Second))
	assert.Equal(t, time.Second, GetDuration("-3s", time.Second))
}
