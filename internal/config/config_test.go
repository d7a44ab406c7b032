// ABOUTME: Tests for configuration loading, env expansion and validation
// ABOUTME: Uses temp files so no fixtures are needed

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tripchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
relay:
  ws_url: wss://chat.example.com/ws
booking:
  api_url: https://api.example.com
  token: secret-token
chat:
  typing_quiet: 2s
  read_receipt_delay: 1s
  history_limit: 50
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com/ws", cfg.Relay.WSURL)
	assert.Equal(t, "secret-token", cfg.Booking.Token)
	assert.Equal(t, 2*time.Second, cfg.Chat.TypingQuiet)
	assert.Equal(t, time.Second, cfg.Chat.ReadReceiptDelay)
	assert.Equal(t, 50, cfg.Chat.HistoryLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TRIPCHAT_TOKEN", "from-env")
	path := writeConfig(t, `
relay:
  ws_url: wss://chat.example.com/ws
booking:
  api_url: https://api.example.com
  token: ${TRIPCHAT_TOKEN}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Booking.Token)
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	path := writeConfig(t, `
relay:
  ws_url: wss://chat.example.com/ws
booking:
  api_url: https://api.example.com
  token: ${DEFINITELY_NOT_SET_ANYWHERE}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Booking.Token)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
booking:
  api_url: https://api.example.com
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "relay.ws_url")

	path = writeConfig(t, `
relay:
  ws_url: wss://chat.example.com/ws
`)
	_, err = Load(path)
	assert.ErrorContains(t, err, "booking.api_url")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
relay:
  ws_url: wss://chat.example.com/ws
booking:
  api_url: https://api.example.com
chat:
  typing_quiet: soonish
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "typing_quiet")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
