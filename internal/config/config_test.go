package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresServerUnlessDiscoveryEnabled(t *testing.T) {
	_, _, err := Load([]string{})
	require.Error(t, err)

	cfg, _, err := Load([]string{"--discover"})
	require.NoError(t, err)
	assert.True(t, cfg.DiscoveryEnabled)
	assert.Empty(t, cfg.ServerHost)
}

func TestLoadFlagPrecedenceOverEnv(t *testing.T) {
	t.Setenv("SLIMCLIENT_SERVER", "env-host")
	cfg, _, err := Load([]string{"--server", "flag-host"})
	require.NoError(t, err)
	assert.Equal(t, "flag-host", cfg.ServerHost)
}

func TestLoadEnvPrecedenceOverDefault(t *testing.T) {
	t.Setenv("SLIMCLIENT_SERVER", "env-host")
	cfg, _, err := Load([]string{})
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.ServerHost)
}

func TestLoadYamlOverlayFillsUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slimclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_host: yaml-host\nplayer_name: lounge\n"), 0o644))

	cfg, _, err := Load([]string{"--config-file", path})
	require.NoError(t, err)
	assert.Equal(t, "yaml-host", cfg.ServerHost)
	assert.Equal(t, "lounge", cfg.PlayerName)
}

func TestLoadFlagOverridesYamlOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slimclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_host: yaml-host\n"), 0o644))

	cfg, _, err := Load([]string{"--config-file", path, "--server", "flag-host"})
	require.NoError(t, err)
	assert.Equal(t, "flag-host", cfg.ServerHost)
}

func TestLoadMissingConfigFileWarnsButDoesNotFail(t *testing.T) {
	cfg, warnings, err := Load([]string{"--discover", "--config-file", "/nonexistent/slimclient.yaml"})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotEmpty(t, warnings)
}

func TestLoadDefaultsPlayerIDToHostname(t *testing.T) {
	cfg, _, err := Load([]string{"--discover"})
	require.NoError(t, err)
	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, host, cfg.PlayerID)
}

func TestLoadExplicitPlayerIDWins(t *testing.T) {
	cfg, _, err := Load([]string{"--discover", "--player-id", "custom-id"})
	require.NoError(t, err)
	assert.Equal(t, "custom-id", cfg.PlayerID)
}

func TestLoadVolumePersistPathDefaultsUnderUserConfigDir(t *testing.T) {
	cfg, _, err := Load([]string{"--discover"})
	require.NoError(t, err)
	assert.Contains(t, cfg.VolumePersistPath, "slimclient")
	assert.Equal(t, "volume.json", filepath.Base(cfg.VolumePersistPath))
}

func TestLoadExplicitVolumeFileWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vol.json")
	cfg, _, err := Load([]string{"--discover", "--volume-file", path})
	require.NoError(t, err)
	assert.Equal(t, path, cfg.VolumePersistPath)
}

func TestLoadRejectsUnknownFlag(t *testing.T) {
	_, _, err := Load([]string{"--not-a-real-flag"})
	require.Error(t, err)
}

func TestLoadInvalidYamlReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))

	_, _, err := Load([]string{"--discover", "--config-file", path})
	require.Error(t, err)
}

func TestLoadDefaultServerPort(t *testing.T) {
	cfg, _, err := Load([]string{"--discover"})
	require.NoError(t, err)
	assert.Equal(t, 3483, cfg.ServerPort)
}

func TestLoadDefaultAudioBackendIsOto(t *testing.T) {
	cfg, _, err := Load([]string{"--discover"})
	require.NoError(t, err)
	assert.Equal(t, "oto", cfg.AudioBackend)
}

func TestLoadExplicitAudioBackendWins(t *testing.T) {
	cfg, _, err := Load([]string{"--discover", "--audio-backend", "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.AudioBackend)
}

func TestLoadRejectsUnknownAudioBackend(t *testing.T) {
	_, _, err := Load([]string{"--discover", "--audio-backend", "bogus"})
	require.Error(t, err)
}
