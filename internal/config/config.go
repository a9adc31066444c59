// Package config loads and watches application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the configuration implementation.
type Config struct {
	AppName  string
	RunMode  string
	Protocol string
	Domain   string
	Host     string
	Port     int
	Logger   *Logger
	Auth     *Auth
	ERP      *ERP
	Export   *Export
	Notify   *Notify
	Data     *Data
	Viper    *viper.Viper
}

var (
	config *Config
	mu     sync.Mutex
)

// LoadConfig loads the configuration from the file.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		ex, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		v.SetConfigName("config")
		v.AddConfigPath("/etc/exportd")
		v.AddConfigPath("$HOME/.exportd")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Dir(ex))
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := fromViper(v)

	mu.Lock()
	config = cfg
	mu.Unlock()

	return cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.Lock()
	defer mu.Unlock()
	return config
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppName:  v.GetString("app_name"),
		RunMode:  v.GetString("run_mode"),
		Protocol: v.GetString("server.protocol"),
		Domain:   v.GetString("server.domain"),
		Host:     v.GetString("server.host"),
		Port:     v.GetInt("server.port"),
		Logger:   getLoggerConfig(v),
		Auth:     getAuth(v),
		ERP:      getERPConfig(v),
		Export:   getExportConfig(v),
		Notify:   getNotifyConfig(v),
		Data:     getDataConfig(v),
		Viper:    v,
	}
}

// Watch reloads the configuration whenever the config file changes and
// invokes onChange with the fresh snapshot.
func (c *Config) Watch(onChange func(*Config)) {
	c.Viper.OnConfigChange(func(e fsnotify.Event) {
		cfg := fromViper(c.Viper)

		mu.Lock()
		config = cfg
		mu.Unlock()

		if onChange != nil {
			onChange(cfg)
		}
	})
	c.Viper.WatchConfig()
}

// Addr returns the listen address of the HTTP surface.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
