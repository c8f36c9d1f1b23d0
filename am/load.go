package am

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/linkpulse/errors"
)

// File names and locations searched by Load.
const (
	ConfigFileName   = "am.toml"
	UserConfigDir    = ".linkpulse"
	SystemConfigPath = "/etc/linkpulse/am.toml"
)

var (
	loadMu        sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper

	// ConfigSources records which file supplied each key during the last load.
	ConfigSources = map[string]SourceInfo{}
)

// Load reads, merges and validates the configuration. The result is cached until Reset.
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()
	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	loadMu.Lock()
	defer loadMu.Unlock()
	return initViper()
}

// LoadWithViper unmarshals and validates configuration from a prepared Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, on top of the defaults.
// Environment variables are not consulted.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", configPath)
	}
	return config, nil
}

// loadBytes validates TOML content without touching the filesystem.
func loadBytes(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	SetDefaults(v)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return LoadWithViper(v)
}

// Reset clears the cached configuration so the next Load rereads every source
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper must be called with loadMu held.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)
	ConfigSources = mergeConfigFiles(v)

	viperInstance = v
	return v
}

// UserConfigPath returns ~/.linkpulse/am.toml, or "" without a home directory.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, ConfigFileName)
}

// findProjectConfig walks up from the working directory looking for am.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type configLayer struct {
	source ConfigSource
	path   string
}

// configLayers lists candidate files from lowest to highest precedence.
func configLayers() []configLayer {
	layers := []configLayer{{SourceSystem, SystemConfigPath}}
	if user := UserConfigPath(); user != "" {
		layers = append(layers, configLayer{SourceUser, user})
	}
	if project := findProjectConfig(); project != "" && project != UserConfigPath() {
		layers = append(layers, configLayer{SourceProject, project})
	}
	return layers
}

// ConfigFiles returns the existing config files in precedence order.
func ConfigFiles() []string {
	var files []string
	for _, layer := range configLayers() {
		if _, err := os.Stat(layer.path); err == nil {
			files = append(files, layer.path)
		}
	}
	return files
}

// ActiveConfigPath returns the highest-precedence existing config file, or
// the user config path when none exists yet.
func ActiveConfigPath() string {
	files := ConfigFiles()
	if len(files) == 0 {
		return UserConfigPath()
	}
	return files[len(files)-1]
}

// mergeConfigFiles merges system < user < project into the config layer of v.
// Environment variables stay on top because they are resolved above that layer.
func mergeConfigFiles(v *viper.Viper) map[string]SourceInfo {
	sources := make(map[string]SourceInfo)
	for _, layer := range configLayers() {
		if _, err := os.Stat(layer.path); err != nil {
			continue
		}
		tmp := viper.New()
		tmp.SetConfigFile(layer.path)
		tmp.SetConfigType("toml")
		if err := tmp.ReadInConfig(); err != nil {
			continue
		}
		settings := tmp.AllSettings()
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
		for _, key := range flattenKeys(settings, "") {
			sources[key] = SourceInfo{Source: layer.source, Path: layer.path}
		}
	}
	return sources
}

func flattenKeys(settings map[string]interface{}, prefix string) []string {
	var keys []string
	for k, value := range settings {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := value.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(nested, full)...)
			continue
		}
		keys = append(keys, full)
	}
	return keys
}
