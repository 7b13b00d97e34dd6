package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wirerpc/internal/client"
)

type fileConfig struct {
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	TLSCAFile          string `toml:"tls_ca_file"`
	TLSSelfSigned      bool   `toml:"tls_self_signed"`
	AuthSecret         string `toml:"auth_secret"`
	Timeout            string `toml:"timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
	Metrics            bool   `toml:"metrics"`
	MetricsPort        int    `toml:"metrics_port"`
	Debug              bool   `toml:"debug"`
}

func loadClientConfig(path string) (client.Config, error) {
	cfg := client.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return client.Config{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("tls_ca_file") {
		cfg.TLSCAFile = strings.TrimSpace(raw.TLSCAFile)
	}
	if meta.IsDefined("tls_self_signed") {
		cfg.TLSSelfSigned = raw.TLSSelfSigned
	}
	if meta.IsDefined("auth_secret") {
		cfg.AuthSecret = raw.AuthSecret
	}
	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return client.Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("metrics") {
		cfg.Metrics = raw.Metrics
	}
	if meta.IsDefined("metrics_port") {
		cfg.MetricsPort = raw.MetricsPort
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	return cfg, nil
}
