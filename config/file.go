package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileConfig is the subset of settings that may come from a YAML file.
// Secrets stay in the environment.
type fileConfig struct {
	ServerPort int    `yaml:"server_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	Store      struct {
		Backend    string `yaml:"backend"`
		DataDir    string `yaml:"data_dir"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"store"`
	Avatar struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
	} `yaml:"avatar"`
	Mail struct {
		Transport string `yaml:"transport"`
		Channel   string `yaml:"channel"`
	} `yaml:"mail"`
	ModelServerURL string        `yaml:"model_server_url"`
	Models         []ModelConfig `yaml:"models"`
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.ServerPort != 0 {
		cfg.ServerPort = fc.ServerPort
	}
	setString(&cfg.Log.Level, fc.LogLevel)
	setString(&cfg.Log.Format, fc.LogFormat)
	setString(&cfg.Store.Backend, strings.ToLower(fc.Store.Backend))
	setString(&cfg.Store.DataDir, fc.Store.DataDir)
	setString(&cfg.Store.SQLitePath, fc.Store.SQLitePath)
	setString(&cfg.Avatar.Backend, strings.ToLower(fc.Avatar.Backend))
	setString(&cfg.Avatar.Dir, fc.Avatar.Dir)
	setString(&cfg.Mail.Transport, strings.ToLower(fc.Mail.Transport))
	setString(&cfg.Mail.Channel, fc.Mail.Channel)
	setString(&cfg.Models.ServerURL, fc.ModelServerURL)

	if len(fc.Models) > 0 {
		models := make([]ModelConfig, 0, len(fc.Models))
		for i, m := range fc.Models {
			m.Name = strings.TrimSpace(m.Name)
			if m.Name == "" {
				return fmt.Errorf("parse config %s: model %d has no name", path, i)
			}
			models = append(models, m)
		}
		cfg.Models.Catalog = models
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
