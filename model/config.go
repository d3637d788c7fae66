package model

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is read from config.toml at startup and handed to the controller.
type Config struct {
	Mode           string
	Port           int
	CookieSecret   string
	BodyLimit      string
	MaxLineItems   int
	DefaultCountry string
	Creator        string
	Upload         UploadConfig

	// SecureCookies marks the session and CSRF cookies Secure. Enable it
	// only behind a TLS terminating proxy, the server itself speaks HTTP.
	SecureCookies bool
}

// UploadConfig controls which logo uploads are accepted and whether they
// are written to disk.
type UploadConfig struct {
	Dir               string
	AllowedExtensions []string
	PersistUploads    bool
	MaxLogoBytes      int64
}

// DefaultConfig returns the configuration used when no config.toml exists.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a TOML configuration file. A missing file is not an
// error, the defaults are used instead.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := &Config{}
	if err = toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Mode == "" {
		cfg.Mode = "production"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CookieSecret == "" {
		// sessions only live until the next restart
		cfg.CookieSecret = randomSecret()
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "10M"
	}
	if cfg.MaxLineItems == 0 {
		cfg.MaxLineItems = 500
	}
	if cfg.DefaultCountry == "" {
		cfg.DefaultCountry = "DE"
	}
	if cfg.Creator == "" {
		cfg.Creator = "quickinvoice"
	}
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "uploads"
	}
	if len(cfg.Upload.AllowedExtensions) == 0 {
		cfg.Upload.AllowedExtensions = []string{"png", "jpg", "jpeg", "gif"}
	}
	for i, ext := range cfg.Upload.AllowedExtensions {
		cfg.Upload.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(ext, "."))
	}
	if cfg.Upload.MaxLogoBytes == 0 {
		cfg.Upload.MaxLogoBytes = 5 * 1024 * 1024
	}
}

// IsDevelopment reports whether the application runs in development mode.
func (cfg *Config) IsDevelopment() bool {
	return cfg.Mode == "development"
}

func randomSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
