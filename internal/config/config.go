package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingAddress = errors.New("config: missing address")
	ErrMissingListen  = errors.New("config: missing listen address")
)

// TLSConfig mirrors client.TLSConfig for the TOML surface.
type TLSConfig struct {
	Enabled            bool   `toml:"enabled"`
	ServerName         string `toml:"server_name"`
	CAFile             string `toml:"ca_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// ClientConfig is the driftctl config file shape.
type ClientConfig struct {
	Address          string    `toml:"address"`
	ConnectTimeoutMS int       `toml:"connect_timeout_ms"`
	RequestTimeoutMS int       `toml:"request_timeout_ms"`
	KeepAlive        bool      `toml:"keepalive"`
	TLS              TLSConfig `toml:"tls"`
}

func (c ClientConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// SimConfig is the driftsim config file shape.
type SimConfig struct {
	ListenAddr  string   `toml:"listen_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := ClientConfig{
		ConnectTimeoutMS: 5000,
		RequestTimeoutMS: 10000,
		KeepAlive:        true,
	}
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Address) == "" {
		return ErrMissingAddress
	}
	return nil
}

func LoadSimConfig(path string) (SimConfig, error) {
	cfg := SimConfig{
		ListenAddr: ":7878",
		AdminAddr:  ":7879",
	}
	if err := loadToml(path, &cfg); err != nil {
		return SimConfig{}, err
	}
	if err := ValidateSimConfig(cfg); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func ValidateSimConfig(cfg SimConfig) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return ErrMissingListen
	}
	return nil
}

func loadToml(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
