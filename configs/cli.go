// Package configs contains the logic to obtain app configuration from a file or the environment
package configs

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const appName = "parley"

//go:embed parley.toml
var defaultConfigFile []byte

// InitConfig initializes the app config with Viper from the environment, a specified file, or a default file.
func InitConfig(file string) error {
	if file == "" {
		panic("dev error, InitConfig should always be passed a valid config filepath")
	}
	viper.SetConfigName(appName)
	viper.SetConfigType("toml")

	// allow env vars to override config file
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigFile(file)

	// if config file does not exist, create it with the embedded default config
	if _, err := os.Stat(file); err != nil {
		slog.Debug("config file not found", "path", file)
		if err := viper.ReadConfig(bytes.NewBuffer(defaultConfigFile)); err != nil {
			return fmt.Errorf("error reading default embedded config file: %w", err)
		}
		slog.Debug("writing new config file", "path", file)
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("error writing default config: %w", err)
		}
		return nil
	}

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetConfigDir obtains the configuration directory in a cross-platform manner,
// always respecting the XDG_CONFIG_HOME env var, using standard defaults on all OS's,
// but overriding to ~/.config on macOS
func GetConfigDir() (string, error) {
	var xdgConfigHome string
	if runtime.GOOS == "darwin" && os.Getenv("XDG_CONFIG_HOME") == "" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}
	return ensureDir(filepath.Join(xdgConfigHome, appName))
}

// GetStateDir obtains the directory the session is persisted to.
func GetStateDir() (string, error) {
	return ensureDir(filepath.Join(xdg.StateHome, appName))
}

func ensureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("error creating application directory (%s): %w", dir, err)
	}
	return dir, nil
}

// Settings is the typed view of the loaded configuration.
type Settings struct {
	APIOrigin      string
	EventsPath     string
	HTTPTimeout    time.Duration
	Reconnect      bool
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	SessionBackend string
	SessionPath    string
	CacheTTL       time.Duration
	Debug          bool
}

// Current reads the settings from viper.
func Current() Settings {
	return Settings{
		APIOrigin:      viper.GetString("servers.api-origin"),
		EventsPath:     viper.GetString("servers.events-path"),
		HTTPTimeout:    viper.GetDuration("http.timeout"),
		Reconnect:      viper.GetBool("realtime.reconnect"),
		ReconnectMin:   viper.GetDuration("realtime.reconnect-min"),
		ReconnectMax:   viper.GetDuration("realtime.reconnect-max"),
		SessionBackend: viper.GetString("session.backend"),
		SessionPath:    viper.GetString("session.path"),
		CacheTTL:       viper.GetDuration("cache.ttl"),
		Debug:          viper.GetBool("debug"),
	}
}
