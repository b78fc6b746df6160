package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4040\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4040, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "sqlite", cfg.State.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Downloaders)
}

func TestLoad_Downloaders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
downloaders:
  - name: qb-main
    type: qbittorrent
    host: 192.168.1.10
    port: 8080
    username: admin
    password: adminadmin
  - name: tr
    type: transmission
    host: localhost
    port: 9091
    disabled: true
notifications:
  - name: tg
    type: telegram
    settings:
      botToken: abc
      chatId: "42"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Downloaders, 2)

	assert.Equal(t, "qb-main", cfg.Downloaders[0].Name)
	assert.Equal(t, "qbittorrent", cfg.Downloaders[0].Type)
	assert.Equal(t, 8080, cfg.Downloaders[0].Port)
	assert.False(t, cfg.Downloaders[0].Disabled)
	assert.True(t, cfg.Downloaders[1].Disabled)

	require.Len(t, cfg.Notifications, 1)
	assert.Equal(t, "telegram", cfg.Notifications[0].Type)
	assert.Len(t, cfg.Notifications[0].Settings, 2)
}

func TestLoad_DownloaderWithoutType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("downloaders:\n  - name: broken\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: 3030}
	assert.Equal(t, "0.0.0.0:3030", c.Address())
}
