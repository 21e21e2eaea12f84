// internal/config/config.go

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
)

const (
	DefaultConfigFileName = "machines.yaml"
	DefaultConfigDir      = ".config/sshorch"
	DefaultFilePerms      = 0600
)

type Manager struct {
	fs         afero.Fs
	configPath string
	config     *models.Config
}

// NewManager tworzy nowego menedżera konfiguracji na danym systemie plików
func NewManager(fs afero.Fs, configPath string) *Manager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if configPath == "" {
		defaultPath, err := GetDefaultConfigPath()
		if err == nil {
			configPath = defaultPath
		} else {
			// Fallback do bieżącego katalogu jeśli nie można uzyskać ścieżki domowej
			configPath = DefaultConfigFileName
		}
	}

	return &Manager{
		fs:         fs,
		configPath: configPath,
		config:     &models.Config{},
	}
}

// Load wczytuje konfigurację z pliku (JSON lub YAML, po rozszerzeniu), uzupełnia wartości domyślne i waliduje
func (m *Manager) Load() error {
	return m.LoadWithEnv(nil)
}

// LoadWithEnv działa jak Load, ale przed wartościami domyślnymi nakłada nadpisania ze środowiska
func (m *Manager) LoadWithEnv(env *Env) error {
	data, err := afero.ReadFile(m.fs, m.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.ConfigError, fmt.Sprintf("config file %s does not exist", m.configPath), err)
		}
		return apperr.New(apperr.FileError, "failed to read config file", err)
	}

	cfg := &models.Config{}
	if err := decode(m.configPath, data, cfg); err != nil {
		return apperr.New(apperr.ConfigError, "failed to parse config file", err)
	}

	if env != nil {
		env.Apply(cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return apperr.New(apperr.ConfigError, "invalid config", err)
	}

	m.config = cfg
	return nil
}

// Save zapisuje konfigurację do pliku
func (m *Manager) Save() error {
	configDir := filepath.Dir(m.configPath)
	if err := m.fs.MkdirAll(configDir, 0755); err != nil {
		return apperr.New(apperr.FileError, "failed to create config directory", err)
	}

	data, err := encode(m.configPath, m.config)
	if err != nil {
		return apperr.New(apperr.ConfigError, "failed to marshal config", err)
	}

	if err := m.backup(); err != nil {
		return err
	}

	if err := afero.WriteFile(m.fs, m.configPath, data, DefaultFilePerms); err != nil {
		return apperr.New(apperr.FileError, "failed to write config file", err)
	}

	return nil
}

// backup kopiuje istniejący plik konfiguracyjny do <plik>.old
func (m *Manager) backup() error {
	content, err := afero.ReadFile(m.fs, m.configPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return apperr.New(apperr.FileError, "error reading config file", err)
	}

	if err := afero.WriteFile(m.fs, m.configPath+".old", content, DefaultFilePerms); err != nil {
		return apperr.New(apperr.FileError, "error creating backup file", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func decode(path string, data []byte, out interface{}) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, out)
	}
	return json.Unmarshal(data, out)
}

func encode(path string, in interface{}) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(in)
	}
	return json.MarshalIndent(in, "", "    ")
}

// LoadFile wczytuje dowolny plik YAML/JSON (np. scenariusz) do out
func LoadFile(fs afero.Fs, path string, out interface{}) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return apperr.New(apperr.FileError, fmt.Sprintf("failed to read %s", path), err)
	}
	if err := decode(path, data, out); err != nil {
		return apperr.New(apperr.ConfigError, fmt.Sprintf("failed to parse %s", path), err)
	}
	return nil
}

// Config zwraca wczytaną konfigurację
func (m *Manager) Config() *models.Config {
	return m.config
}

// SetConfig podmienia konfigurację (np. przed Save)
func (m *Manager) SetConfig(cfg *models.Config) {
	m.config = cfg
}

// GetConfigPath zwraca ścieżkę pliku konfiguracyjnego
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetHosts zwraca listę wszystkich maszyn
func (m *Manager) GetHosts() []models.Host {
	return m.config.Machines
}

// FindHostByName szuka maszyny po nazwie
func (m *Manager) FindHostByName(name string) (models.Host, int, error) {
	for i, host := range m.config.Machines {
		if host.Name == name {
			return host, i, nil
		}
	}
	return models.Host{}, -1, apperr.New(apperr.NotFoundError, fmt.Sprintf("machine %q not found in config", name), nil)
}

func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %v", err)
	}

	return filepath.Join(homeDir, DefaultConfigDir, DefaultConfigFileName), nil
}
