// Package config charge la configuration du service de transfert (viper).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/juste-un-gars/anemone_transfer/internal/logger"
	"github.com/juste-un-gars/anemone_transfer/internal/store"
	"github.com/juste-un-gars/anemone_transfer/internal/transfer"
)

// EnvPrefix préfixe les variables d'environnement (ANEMONE_TRANSFER_API_LISTEN, ...)
const EnvPrefix = "ANEMONE_TRANSFER"

// Config représente la configuration de l'application
type Config struct {
	App         AppConfig                   `mapstructure:"app"`
	Paths       PathsConfig                 `mapstructure:"paths"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Store       StoreConfig                 `mapstructure:"store"`
	Scheduler   SchedulerConfig             `mapstructure:"scheduler"`
	Transfer    TransferConfig              `mapstructure:"transfer"`
	API         APIConfig                   `mapstructure:"api"`
	Security    SecurityConfig              `mapstructure:"security"`
	Connections map[string]ConnectionConfig `mapstructure:"connections"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
}

type PathsConfig struct {
	ConfigDir string `mapstructure:"config_dir"`
	DataDir   string `mapstructure:"data_dir"`
	LogDir    string `mapstructure:"log_dir"`
}

type LoggingConfig struct {
	Format   string            `mapstructure:"format"` // json ou console
	File     string            `mapstructure:"file"`   // vide = <log_dir>/anemone_transfer.log
	Quiet    bool              `mapstructure:"quiet"`
	Rotation LogRotationConfig `mapstructure:"rotation"`
}

type LogRotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxFiles   int  `mapstructure:"max_files"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// StoreConfig choisit le stockage des jobs
type StoreConfig struct {
	Backend         string `mapstructure:"backend"` // file ou sqlcipher
	Path            string `mapstructure:"path"`
	EncryptionKey   string `mapstructure:"encryption_key"`
	KeyCredentialID string `mapstructure:"key_credential_id"`
}

type SchedulerConfig struct {
	MaxConcurrentRuns      int `mapstructure:"max_concurrent_runs"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown_timeout_seconds"`
}

// TransferConfig contient les valeurs par défaut des jobs et des connexions
type TransferConfig struct {
	DefaultMaxRetries        int `mapstructure:"default_max_retries"`
	DefaultRetryDelaySeconds int `mapstructure:"default_retry_delay_seconds"`
	TimeoutSeconds           int `mapstructure:"timeout_seconds"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type SecurityConfig struct {
	KeystoreServiceName string `mapstructure:"keystore_service_name"`
}

// ConnectionConfig décrit un profil de connexion nommé
type ConnectionConfig struct {
	Protocol              string `mapstructure:"protocol"`
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	CredentialID          string `mapstructure:"credential_id"`
	BasePath              string `mapstructure:"base_path"`
	Share                 string `mapstructure:"share"`
	Domain                string `mapstructure:"domain"`
	KnownHosts            string `mapstructure:"known_hosts"`
	InsecureIgnoreHostKey bool   `mapstructure:"insecure_ignore_host_key"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
	MaxBytesPerSecond     int64  `mapstructure:"max_bytes_per_second"`
}

// Load charge la configuration depuis le fichier par défaut ou spécifié
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Définir les chemins de recherche de configuration
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(getDefaultConfigDir())
	}

	// Si le fichier n'existe pas, utiliser les valeurs par défaut
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("erreur lecture config: %w", err)
		}
	}

	setDefaults(v)

	// Permettre les variables d'environnement
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("erreur décodage config: %w", err)
	}

	// Remplacer les variables d'environnement dans les chemins
	config.Paths.ConfigDir = expandPath(config.Paths.ConfigDir)
	config.Paths.DataDir = expandPath(config.Paths.DataDir)
	config.Paths.LogDir = expandPath(config.Paths.LogDir)
	config.Logging.File = expandPath(config.Logging.File)
	config.Store.Path = expandPath(config.Store.Path)
	for name, c := range config.Connections {
		c.KnownHosts = expandPath(c.KnownHosts)
		config.Connections[name] = c
	}

	if config.Store.Path == "" {
		config.Store.Path = defaultStorePath(config.Store.Backend, config.Paths.DataDir)
	}
	if config.Logging.File == "" && config.Paths.LogDir != "" {
		config.Logging.File = filepath.Join(config.Paths.LogDir, "anemone_transfer.log")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate vérifie les valeurs qui empêcheraient le démarrage
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("app.log_level: %w", err)
	}
	switch c.Store.Backend {
	case store.BackendFile, store.BackendSQLCipher:
	default:
		return fmt.Errorf("store.backend: %w: %q", store.ErrUnknownBackend, c.Store.Backend)
	}
	if c.Scheduler.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("scheduler.max_concurrent_runs doit être positif (reçu %d)", c.Scheduler.MaxConcurrentRuns)
	}
	if c.Transfer.DefaultMaxRetries < 0 || c.Transfer.DefaultRetryDelaySeconds < 0 {
		return fmt.Errorf("transfer: les valeurs de retry ne peuvent pas être négatives")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen est requis quand l'API est activée")
	}
	if _, err := c.ConnectionSettings(); err != nil {
		return err
	}
	return nil
}

// ConnectionSettings convertit les profils de connexion en transfer.Settings
func (c *Config) ConnectionSettings() (map[string]transfer.Settings, error) {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]transfer.Settings, len(names))
	for _, name := range names {
		cc := c.Connections[name]
		timeout := cc.TimeoutSeconds
		if timeout <= 0 {
			timeout = c.Transfer.TimeoutSeconds
		}
		s := transfer.Settings{
			Name:                  name,
			Protocol:              transfer.Protocol(strings.ToLower(cc.Protocol)),
			Host:                  cc.Host,
			Port:                  cc.Port,
			Username:              cc.Username,
			Password:              cc.Password,
			CredentialID:          cc.CredentialID,
			BasePath:              cc.BasePath,
			Share:                 cc.Share,
			Domain:                cc.Domain,
			KnownHostsFile:        cc.KnownHosts,
			InsecureIgnoreHostKey: cc.InsecureIgnoreHostKey,
			Timeout:               time.Duration(timeout) * time.Second,
			MaxBytesPerSecond:     cc.MaxBytesPerSecond,
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("connections.%s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

// LoggerConfig retourne la configuration du logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.App.LogLevel,
		Format:     c.Logging.Format,
		OutputPath: c.Logging.File,
		MaxSizeMB:  c.Logging.Rotation.MaxSizeMB,
		MaxFiles:   c.Logging.Rotation.MaxFiles,
		MaxAgeDays: c.Logging.Rotation.MaxAgeDays,
		Compress:   c.Logging.Rotation.Compress,
		Quiet:      c.Logging.Quiet,
	}
}

// StoreOptions retourne les options d'ouverture du stockage des jobs
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:         c.Store.Backend,
		Path:            c.Store.Path,
		EncryptionKey:   c.Store.EncryptionKey,
		KeyCredentialID: c.Store.KeyCredentialID,
		KeyringService:  c.Security.KeystoreServiceName,
	}
}

// ShutdownTimeout retourne le délai accordé aux runs en cours à l'arrêt
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Scheduler.ShutdownTimeoutSeconds) * time.Second
}

// getDefaultConfigDir retourne le répertoire de configuration par défaut selon l'OS
func getDefaultConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "AnemoneTransfer")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "AnemoneTransfer")
	default: // Linux et autres
		return filepath.Join(os.Getenv("HOME"), ".config", "anemone_transfer")
	}
}

func defaultStorePath(backend, dataDir string) string {
	if backend == store.BackendSQLCipher {
		return filepath.Join(dataDir, "anemone_transfer.db")
	}
	return filepath.Join(dataDir, "jobs.json")
}

// expandPath remplace ${HOME} et autres variables dans les chemins
func expandPath(path string) string {
	if path == "" {
		return path
	}

	home, _ := os.UserHomeDir()
	return os.Expand(path, func(key string) string {
		switch key {
		case "HOME":
			return home
		default:
			return os.Getenv(key)
		}
	})
}

// setDefaults définit les valeurs par défaut
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "AnemoneTransfer")
	v.SetDefault("app.version", "0.1.0-dev")
	v.SetDefault("app.log_level", "info")

	// Paths
	v.SetDefault("paths.config_dir", getDefaultConfigDir())
	v.SetDefault("paths.data_dir", getDefaultConfigDir())
	v.SetDefault("paths.log_dir", filepath.Join(getDefaultConfigDir(), "logs"))

	// Logging
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.quiet", false)
	v.SetDefault("logging.rotation.max_size_mb", 10)
	v.SetDefault("logging.rotation.max_files", 5)
	v.SetDefault("logging.rotation.max_age_days", 30)
	v.SetDefault("logging.rotation.compress", true)

	// Store
	v.SetDefault("store.backend", store.BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("store.encryption_key", "")
	v.SetDefault("store.key_credential_id", store.DefaultKeyID)

	// Scheduler
	v.SetDefault("scheduler.max_concurrent_runs", 4)
	v.SetDefault("scheduler.shutdown_timeout_seconds", 30)

	// Transfer
	v.SetDefault("transfer.default_max_retries", 3)
	v.SetDefault("transfer.default_retry_delay_seconds", 10)
	v.SetDefault("transfer.timeout_seconds", 30)

	// API
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen", "127.0.0.1:8740")

	// Security
	v.SetDefault("security.keystore_service_name", transfer.DefaultServiceName)
}
