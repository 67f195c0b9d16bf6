// Package config resolves runtime configuration from flags, environment
// variables, an optional YAML file, and built-in defaults, in that order
// of precedence, the way a livekit-client-2 style loadConfig/getEnv pair does for a
// much smaller option set.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// Config is everything the player binary needs to wire up its
// dependency graph.
type Config struct {
	ServerHost string
	ServerPort int
	PlayerID   string
	PlayerName string

	LogLevel    string
	LogEndpoint string

	VolumePersistPath string

	MetricsAddr string
	WebUIAddr   string

	DiscoveryEnabled bool

	// AudioBackend selects the aba.Backend implementation: "oto" plays
	// through a real audio device (internal/aba/otoaba), "memory" keeps
	// everything in an in-process byte ring with no sound (internal/aba/memaba),
	// useful for headless runs and CI.
	AudioBackend string
}

// fileOverlay is the optional YAML layer, consulted between env vars and
// built-in defaults. Pointer fields distinguish "absent from the file"
// from "explicitly set to the zero value".
type fileOverlay struct {
	ServerHost        *string `yaml:"server_host"`
	ServerPort        *int    `yaml:"server_port"`
	PlayerName        *string `yaml:"player_name"`
	LogLevel          *string `yaml:"log_level"`
	LogEndpoint       *string `yaml:"log_endpoint"`
	VolumePersistPath *string `yaml:"volume_persist_path"`
	MetricsAddr       *string `yaml:"metrics_addr"`
	WebUIAddr         *string `yaml:"webui_addr"`
	DiscoveryEnabled  *bool   `yaml:"discovery_enabled"`
	AudioBackend      *string `yaml:"audio_backend"`
}

// Load parses args (typically os.Args[1:]) into a Config. Precedence is
// flag > environment variable > YAML file > built-in default for every
// field except the player ID, which has no YAML key and falls back to the
// hostname. Warnings is non-nil diagnostics the caller should log once a
// logger exists (Load itself can't depend on internal/logs without a
// cycle risk once logs grows its own config needs).
func Load(args []string) (cfg *Config, warnings []string, err error) {
	fs := pflag.NewFlagSet("slimclient", pflag.ContinueOnError)

	fs.StringP("server", "s", "", "Lyrion server host or IP")
	serverPort := fs.IntP("port", "p", 3483, "Lyrion SlimProto TCP port")
	fs.StringP("player-id", "i", "", "Player identifier sent in the HELO handshake")
	fs.StringP("player-name", "n", "", "Friendly player name shown in the server UI")
	fs.StringP("log-level", "l", "", "Log level: debug, info, warn, error")
	fs.String("log-endpoint", "", "HTTP endpoint for batched structured log shipping")
	fs.String("volume-file", "", "Path to persist the last-set volume and replay gain")
	fs.String("metrics-addr", "", "Address to serve /metrics on (empty disables)")
	fs.String("webui-addr", "", "Address to serve the diagnostics status/WS endpoint on (empty disables)")
	discoveryEnabled := fs.Bool("discover", false, "Use mDNS to find a server when --server is empty")
	configFile := fs.StringP("config-file", "c", "", "Optional YAML config file, layered under flags and env")
	fs.String("audio-backend", "", `Audio backend: "oto" (real device) or "memory" (silent, for CI)`)

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	overlayPath := firstNonEmpty(*configFile, os.Getenv("SLIMCLIENT_CONFIG_FILE"))
	overlay, warn, err := loadFileOverlay(overlayPath)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, warn...)

	cfg = &Config{
		ServerHost:        resolveString(fs, "server", "SLIMCLIENT_SERVER", overlay.ServerHost, ""),
		ServerPort:        resolveInt(fs, "port", "SLIMCLIENT_PORT", overlay.ServerPort, *serverPort),
		PlayerID:          resolveString(fs, "player-id", "SLIMCLIENT_PLAYER_ID", nil, ""),
		PlayerName:        resolveString(fs, "player-name", "SLIMCLIENT_PLAYER_NAME", overlay.PlayerName, "slimclient"),
		LogLevel:          resolveString(fs, "log-level", "SLIMCLIENT_LOG_LEVEL", overlay.LogLevel, "info"),
		LogEndpoint:       resolveString(fs, "log-endpoint", "SLIMCLIENT_LOG_ENDPOINT", overlay.LogEndpoint, ""),
		VolumePersistPath: resolveString(fs, "volume-file", "SLIMCLIENT_VOLUME_FILE", overlay.VolumePersistPath, ""),
		MetricsAddr:       resolveString(fs, "metrics-addr", "SLIMCLIENT_METRICS_ADDR", overlay.MetricsAddr, ""),
		WebUIAddr:         resolveString(fs, "webui-addr", "SLIMCLIENT_WEBUI_ADDR", overlay.WebUIAddr, ""),
		DiscoveryEnabled:  resolveBool(fs, "discover", "SLIMCLIENT_DISCOVER", overlay.DiscoveryEnabled, *discoveryEnabled),
		AudioBackend:      resolveString(fs, "audio-backend", "SLIMCLIENT_AUDIO_BACKEND", overlay.AudioBackend, "oto"),
	}

	if cfg.PlayerID == "" {
		cfg.PlayerID = defaultPlayerID()
	}
	if cfg.VolumePersistPath == "" {
		path, warn := defaultVolumePersistPath()
		cfg.VolumePersistPath = path
		if warn != "" {
			warnings = append(warnings, warn)
		}
	}

	if cfg.ServerHost == "" && !cfg.DiscoveryEnabled {
		return nil, warnings, fmt.Errorf("config: --server is required unless --discover is set")
	}
	if cfg.AudioBackend != "oto" && cfg.AudioBackend != "memory" {
		return nil, warnings, fmt.Errorf("config: --audio-backend must be %q or %q, got %q", "oto", "memory", cfg.AudioBackend)
	}

	return cfg, warnings, nil
}

func loadFileOverlay(path string) (*fileOverlay, []string, error) {
	overlay := &fileOverlay{}
	if path == "" {
		return overlay, nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, []string{fmt.Sprintf("config: file %s not found, ignoring", path)}, nil
		}
		return nil, nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, overlay); err != nil {
		return nil, nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return overlay, nil, nil
}

func resolveString(fs *pflag.FlagSet, flagName, envKey string, yamlVal *string, def string) string {
	if fs.Changed(flagName) {
		v, _ := fs.GetString(flagName)
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if yamlVal != nil {
		return *yamlVal
	}
	return def
}

func resolveInt(fs *pflag.FlagSet, flagName, envKey string, yamlVal *int, def int) int {
	if fs.Changed(flagName) {
		v, _ := fs.GetInt(flagName)
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil {
			return parsed
		}
	}
	if yamlVal != nil {
		return *yamlVal
	}
	return def
}

func resolveBool(fs *pflag.FlagSet, flagName, envKey string, yamlVal *bool, def bool) bool {
	if fs.Changed(flagName) {
		v, _ := fs.GetBool(flagName)
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v == "1" || v == "true" || v == "yes"
	}
	if yamlVal != nil {
		return *yamlVal
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func defaultPlayerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "slimclient"
	}
	return host
}

// defaultVolumePersistPath resolves the volume-persistence file under the
// user's config directory, creating the containing directory and, the
// way doismellburning-samoyed checks a hidraw device's permissions before
// trusting it, verifying the directory is actually writable rather than
// discovering that on the next flush.
func defaultVolumePersistPath() (path string, warning string) {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "slimclient")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return filepath.Join(dir, "volume.json"), fmt.Sprintf("config: could not create %s: %v", dir, err)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return filepath.Join(dir, "volume.json"), fmt.Sprintf("config: volume-persistence directory %s may not be writable: %v", dir, err)
	}
	return filepath.Join(dir, "volume.json"), ""
}
