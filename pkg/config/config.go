// Package config manages the banter configuration file: a JSON file
// with viper-backed dotted-key access, environment overrides, and hot
// reload of edits made while the application runs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultPath is the config file created next to the binary when no
// path is given, matching where users expect to edit it.
const DefaultPath = "config.json"

// Configuration keys. Viper keys are case-insensitive; these are the
// canonical spellings used in code.
const (
	KeyAIBaseURL     = "ai.baseurl"
	KeyAIAPIKey      = "ai.apikey"
	KeyAIModel       = "ai.model"
	KeyAITemperature = "ai.temperature"

	KeyChatMaxHistory   = "chat.maxhistory"
	KeyChatPreset       = "chat.preset"
	KeyChatSystemPrompt = "chat.systemprompt"
	KeyChatPresetsFile  = "chat.presetsfile"
	KeyChatExportPath   = "chat.exportpath"

	KeyLogDebug = "log.debug"
	KeyLogFile  = "log.file"
)

// AI is the upstream API section.
type AI struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// Chat is the conversation section.
type Chat struct {
	MaxHistory   int
	Preset       string
	SystemPrompt string
	PresetsFile  string
	ExportPath   string
}

// Log is the logging section.
type Log struct {
	Debug bool
	File  string
}

// Manager owns the configuration file.
type Manager struct {
	v      *viper.Viper
	path   string
	logger *zap.Logger
}

// Load reads the configuration from path, creating the file with
// defaults when it does not exist. Environment variables prefixed with
// BANTER_ override file values (e.g. BANTER_AI_APIKEY).
func Load(path string, logger *zap.Logger) (*Manager, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	v.SetEnvPrefix("BANTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("write default config %s: %w", path, err)
		}
		logger.Info("created default config", zap.String("path", path))
	}

	return &Manager{v: v, path: path, logger: logger}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAIBaseURL, "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault(KeyAIAPIKey, "")
	v.SetDefault(KeyAIModel, "qwen-vl-max")
	v.SetDefault(KeyAITemperature, 0.7)

	v.SetDefault(KeyChatMaxHistory, 50)
	v.SetDefault(KeyChatPreset, "default")
	v.SetDefault(KeyChatSystemPrompt, "")
	v.SetDefault(KeyChatPresetsFile, "")
	v.SetDefault(KeyChatExportPath, "")

	v.SetDefault(KeyLogDebug, false)
	v.SetDefault(KeyLogFile, "")
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// Get returns the value for a dotted key, or nil when unset.
func (m *Manager) Get(key string) any { return m.v.Get(key) }

// GetString returns the string value for a dotted key.
func (m *Manager) GetString(key string) string { return m.v.GetString(key) }

// GetInt returns the int value for a dotted key.
func (m *Manager) GetInt(key string) int { return m.v.GetInt(key) }

// GetFloat64 returns the float value for a dotted key.
func (m *Manager) GetFloat64(key string) float64 { return m.v.GetFloat64(key) }

// GetBool returns the bool value for a dotted key.
func (m *Manager) GetBool(key string) bool { return m.v.GetBool(key) }

// Override sets an in-memory value for a dotted key without touching
// the file. Command line flags go through here so they win over the
// file and environment for this process only.
func (m *Manager) Override(key string, value any) { m.v.Set(key, value) }

// Set stores a value under a dotted key and persists the file.
func (m *Manager) Set(key string, value any) error {
	m.v.Set(key, value)
	return m.Save()
}

// Save writes the current configuration back to the file.
func (m *Manager) Save() error {
	if err := m.v.WriteConfigAs(m.path); err != nil {
		return fmt.Errorf("save config %s: %w", m.path, err)
	}
	return nil
}

// Watch re-reads the file when it changes on disk and invokes onChange
// after each reload. Call once; the watch lasts for the process
// lifetime.
func (m *Manager) Watch(onChange func()) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.logger.Debug("config reloaded",
			zap.String("file", e.Name),
			zap.String("op", e.Op.String()),
		)
		if onChange != nil {
			onChange()
		}
	})
	m.v.WatchConfig()
}

// AI returns a snapshot of the upstream API section.
func (m *Manager) AI() AI {
	return AI{
		BaseURL:     m.v.GetString(KeyAIBaseURL),
		APIKey:      m.v.GetString(KeyAIAPIKey),
		Model:       m.v.GetString(KeyAIModel),
		Temperature: m.v.GetFloat64(KeyAITemperature),
	}
}

// Chat returns a snapshot of the conversation section.
func (m *Manager) Chat() Chat {
	return Chat{
		MaxHistory:   m.v.GetInt(KeyChatMaxHistory),
		Preset:       m.v.GetString(KeyChatPreset),
		SystemPrompt: m.v.GetString(KeyChatSystemPrompt),
		PresetsFile:  m.v.GetString(KeyChatPresetsFile),
		ExportPath:   m.v.GetString(KeyChatExportPath),
	}
}

// Log returns a snapshot of the logging section.
func (m *Manager) Log() Log {
	return Log{
		Debug: m.v.GetBool(KeyLogDebug),
		File:  m.v.GetString(KeyLogFile),
	}
}
